package contextasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/clip"
	"github.com/vango-go/vai-callagent/pkg/core/cliout"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"golang.org/x/sync/errgroup"
)

const (
	memoryLimit   = 3000
	recentQuery   = "recent activity and conversations"
	lookupTimeout = 10 * time.Second
)

// SourceFunc adapts a function to a Source.
type SourceFunc struct {
	Name string
	Fn   func(ctx context.Context) (string, error)
}

func (s SourceFunc) Title() string { return s.Name }

func (s SourceFunc) Fetch(ctx context.Context) (string, error) { return s.Fn(ctx) }

// Time is the current local time. It makes no external call.
type Time struct {
	Clock clock.Clock
}

func (Time) Title() string { return "Current Time" }

func (t Time) Fetch(context.Context) (string, error) {
	return t.Clock.Spoken(), nil
}

// Memory is the curated long-term memory document, clipped to 3000 runes.
// A missing file yields no section.
type Memory struct {
	Path string
}

func (Memory) Title() string { return "Current Memory" }

func (m Memory) Fetch(context.Context) (string, error) {
	if m.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read memory: %w", err)
	}
	return clip.WithMarker(strings.TrimSpace(string(data)), memoryLimit, "\n... (truncated)"), nil
}

// Recent lists up to five recall hits for a fixed recent-activity query.
type Recent struct {
	Runner   toolexec.Runner
	Commands commands.Catalog
}

func (Recent) Title() string { return "Recent Context" }

func (r Recent) Fetch(ctx context.Context) (string, error) {
	res := r.Runner.Run(ctx, r.Commands.Recall(recentQuery))
	if !res.OK {
		return "", errors.New(res.Err)
	}
	hits, err := cliout.RecallHits(res.Output)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, "- "+h.Observation)
	}
	return strings.Join(lines, "\n"), nil
}

// Calendar is today's and tomorrow's agenda. Each day is included only when
// its lookup succeeded; the two lookups run concurrently.
type Calendar struct {
	Runner   toolexec.Runner
	Commands commands.Catalog
}

func (Calendar) Title() string { return "Calendar" }

func (c Calendar) Fetch(ctx context.Context) (string, error) {
	days := []struct{ key, heading string }{{"today", "Today"}, {"tomorrow", "Tomorrow"}}
	results := make([]toolexec.Result, len(days))
	var g errgroup.Group
	for i, d := range days {
		g.Go(func() error {
			results[i] = c.Runner.Run(ctx, c.Commands.CalendarEvents(d.key, 1, lookupTimeout))
			return nil
		})
	}
	_ = g.Wait()

	var parts []string
	for i, d := range days {
		if !results[i].OK || results[i].Output == "" {
			continue
		}
		parts = append(parts, "### "+d.heading+"\n"+results[i].Output)
	}
	return strings.Join(parts, "\n"), nil
}

// Alerts is a single line naming unhealthy components. It stays silent when
// everything is up.
type Alerts struct {
	Runner   toolexec.Runner
	Commands commands.Catalog
}

func (Alerts) Title() string { return "System Alerts" }

func (a Alerts) Fetch(ctx context.Context) (string, error) {
	res := a.Runner.Run(ctx, a.Commands.Status(lookupTimeout))
	if !res.OK {
		return "", errors.New(res.Err)
	}
	down, err := cliout.Unhealthy(res.Output)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(down))
	for _, name := range down {
		parts = append(parts, name+" is DOWN")
	}
	return strings.Join(parts, "; "), nil
}

// Standard returns the sources in their fixed order: time, memory, recent
// recall, calendar, alerts.
func Standard(clk clock.Clock, memoryPath string, runner toolexec.Runner, cmds commands.Catalog) []Source {
	return []Source{
		Time{Clock: clk},
		Memory{Path: memoryPath},
		Recent{Runner: runner, Commands: cmds},
		Calendar{Runner: runner, Commands: cmds},
		Alerts{Runner: runner, Commands: cmds},
	}
}
