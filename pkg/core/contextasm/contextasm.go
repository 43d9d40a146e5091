// Package contextasm gathers the situational context spoken into the opening
// prompt. Sources are independent and best-effort: a failing or slow source
// is dropped and the rest still arrive, in their registered order.
package contextasm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Section is one titled block of context.
type Section struct {
	Title string
	Body  string
}

func (s Section) String() string {
	return "## " + s.Title + "\n" + s.Body
}

// Assembled is the ordered result of one assembly. It is never nil-valued in
// a way that matters: zero sections is a valid, empty context.
type Assembled struct {
	Sections []Section
	// Omitted names the sources that produced nothing, in source order.
	Omitted []string
}

func (a Assembled) String() string {
	parts := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n\n")
}

func (a Assembled) Empty() bool { return len(a.Sections) == 0 }

// Source fetches the body of one section. An empty body or an error omits
// the section.
type Source interface {
	Title() string
	Fetch(ctx context.Context) (string, error)
}

// Outcome of a single source, reported to the Observer.
type Outcome string

const (
	OutcomeIncluded Outcome = "included"
	OutcomeEmpty    Outcome = "empty"
	OutcomeFailed   Outcome = "failed"
)

type Observer func(title string, outcome Outcome, elapsed time.Duration)

type Options struct {
	Logger *slog.Logger
	// SourceTimeout bounds each source. 0 means 15s.
	SourceTimeout time.Duration
	Observer      Observer
}

type Assembler struct {
	sources []Source
	logger  *slog.Logger
	timeout time.Duration
	observe Observer
}

func New(opts Options, sources ...Source) *Assembler {
	a := &Assembler{
		sources: sources,
		logger:  opts.Logger,
		timeout: opts.SourceTimeout,
		observe: opts.Observer,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.timeout <= 0 {
		a.timeout = 15 * time.Second
	}
	return a
}

type fetched struct {
	body    string
	outcome Outcome
}

// Assemble runs every source concurrently and returns the sections that
// produced a body. It never fails.
func (a *Assembler) Assemble(ctx context.Context) Assembled {
	results := make([]fetched, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			results[i] = a.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var out Assembled
	for i, src := range a.sources {
		if results[i].outcome != OutcomeIncluded {
			out.Omitted = append(out.Omitted, src.Title())
			continue
		}
		out.Sections = append(out.Sections, Section{Title: src.Title(), Body: results[i].body})
	}
	return out
}

// fetch abandons a source that outlives its deadline; a late body is
// discarded.
func (a *Assembler) fetch(ctx context.Context, src Source) (res fetched) {
	start := time.Now()
	title := src.Title()
	defer func() {
		if a.observe != nil {
			a.observe(title, res.outcome, time.Since(start))
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type reply struct {
		body string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Warn("context source panicked", "source", title, "panic", fmt.Sprint(r))
				done <- reply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		body, err := src.Fetch(fctx)
		done <- reply{body: body, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-fctx.Done():
		r = reply{err: fctx.Err()}
	}
	if r.err != nil {
		a.logger.Debug("context source failed", "source", title, "error", r.err)
		return fetched{outcome: OutcomeFailed}
	}
	body := strings.TrimSpace(r.body)
	if body == "" {
		return fetched{outcome: OutcomeEmpty}
	}
	return fetched{body: body, outcome: OutcomeIncluded}
}
