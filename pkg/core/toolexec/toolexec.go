// Package toolexec runs the external command-line tools behind every voice
// action. Run never returns an error: every outcome is a Result whose Text
// is safe to hand straight to the speaker.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/clip"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultOutputLimit = 2000
	DefaultErrorLimit  = 200

	// TimedOutText is the fixed result text for an invocation that hit its deadline.
	TimedOutText = "Command timed out"
)

// Outcome classifies a finished invocation.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Invocation is one external process run. A zero Timeout means the
// executor default; a zero OutputLimit means the executor's output cap.
//
// Callers that parse structured stdout raise OutputLimit so the document is
// not cut mid-way, and bound their own formatted text instead.
type Invocation struct {
	Argv        []string
	Timeout     time.Duration
	Env         map[string]string
	OutputLimit int
}

// Result is the only thing Run produces. Exactly one of Output or Err is
// meaningful, depending on OK.
type Result struct {
	Output  string
	OK      bool
	Err     string
	Outcome Outcome
}

// Text is the speakable form of the result.
func (r Result) Text() string {
	if r.OK {
		return r.Output
	}
	return r.Err
}

// Runner is implemented by Executor. Consumers depend on this so tests can
// substitute canned results.
type Runner interface {
	Run(ctx context.Context, inv Invocation) Result
}

// Observer is notified after every invocation. name is argv[0].
type Observer func(name string, outcome Outcome, elapsed time.Duration)

type Options struct {
	Logger         *slog.Logger
	DefaultTimeout time.Duration
	OutputLimit    int
	ErrorLimit     int
	// WaitDelay bounds how long Run waits for pipes after the process is
	// killed, e.g. when a grandchild still holds stdout open.
	WaitDelay time.Duration
	// MaxConcurrent caps simultaneous child processes. 0 means unlimited.
	MaxConcurrent int
	Leases        []*Lease
	Observer      Observer
}

type Executor struct {
	logger         *slog.Logger
	defaultTimeout time.Duration
	outputLimit    int
	errorLimit     int
	waitDelay      time.Duration
	slots          chan struct{}
	leases         []*Lease
	observer       Observer
	environ        func() []string
}

func New(opts Options) *Executor {
	e := &Executor{
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		outputLimit:    opts.OutputLimit,
		errorLimit:     opts.ErrorLimit,
		waitDelay:      opts.WaitDelay,
		leases:         opts.Leases,
		observer:       opts.Observer,
		environ:        os.Environ,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.defaultTimeout <= 0 {
		e.defaultTimeout = DefaultTimeout
	}
	if e.outputLimit <= 0 {
		e.outputLimit = DefaultOutputLimit
	}
	if e.errorLimit <= 0 {
		e.errorLimit = DefaultErrorLimit
	}
	if e.waitDelay <= 0 {
		e.waitDelay = 2 * time.Second
	}
	if opts.MaxConcurrent > 0 {
		e.slots = make(chan struct{}, opts.MaxConcurrent)
	}
	return e
}

// Run executes inv and reports the outcome as a Result.
//
// Cancellation of ctx does not kill the child: a caller that hangs up
// mid-action leaves the process to finish or to hit its own timeout, since
// actions are at-least-once and never rolled back. Only ctx values are kept.
func (e *Executor) Run(ctx context.Context, inv Invocation) (res Result) {
	start := time.Now()
	name := "<none>"
	if len(inv.Argv) > 0 {
		name = inv.Argv[0]
	}
	defer func() {
		if r := recover(); r != nil {
			res = e.errorResult(fmt.Errorf("panic: %v", r))
		}
		level := slog.LevelDebug
		if !res.OK {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "tool invocation",
			"tool", name,
			"outcome", string(res.Outcome),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if e.observer != nil {
			e.observer(name, res.Outcome, time.Since(start))
		}
	}()

	if len(inv.Argv) == 0 || strings.TrimSpace(inv.Argv[0]) == "" {
		return e.errorResult(errors.New("missing command"))
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		case <-runCtx.Done():
			return timedOut()
		}
	}

	limit := inv.OutputLimit
	if limit <= 0 {
		limit = e.outputLimit
	}
	return e.exec(runCtx, inv.Argv, e.buildEnv(runCtx, inv.Env), limit)
}

func (e *Executor) exec(ctx context.Context, argv []string, env []string, outputLimit int) Result {
	// #nosec G204 -- argv is assembled by action handlers from fixed tool names.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.WaitDelay = e.waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timedOut()
	}
	if err != nil {
		exitErr := &exec.ExitError{}
		if errors.As(err, &exitErr) {
			summary := strings.TrimSpace(stderr.String())
			if summary == "" {
				summary = exitErr.Error()
			}
			return Result{
				Err:     "Command failed: " + clip.Runes(summary, e.errorLimit),
				Outcome: OutcomeFailed,
			}
		}
		return e.errorResult(err)
	}
	return Result{
		Output:  clip.Runes(strings.TrimSpace(stdout.String()), outputLimit),
		OK:      true,
		Outcome: OutcomeOK,
	}
}

// buildEnv merges the process environment with overrides and fills any
// leased secrets that are still absent.
func (e *Executor) buildEnv(ctx context.Context, overrides map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range e.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	for _, l := range e.leases {
		if l == nil {
			continue
		}
		if merged[l.EnvVar] != "" {
			continue
		}
		if v, ok := l.value(ctx, e); ok {
			merged[l.EnvVar] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func (e *Executor) errorResult(err error) Result {
	return Result{
		Err:     "Error: " + clip.Runes(err.Error(), e.errorLimit),
		Outcome: OutcomeError,
	}
}

func timedOut() Result {
	return Result{Err: TimedOutText, Outcome: OutcomeTimeout}
}
