package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
	"github.com/vango-go/vai-callagent/pkg/core/authz"
	"github.com/vango-go/vai-callagent/pkg/core/contextasm"
	"github.com/vango-go/vai-callagent/pkg/core/persona"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

// Session is one call. It is safe for concurrent use: the runtime may run
// several actions at once while the opening prompt is still pending.
type Session struct {
	id       string
	room     string
	started  time.Time
	decision authz.Decision
	orch     *Orchestrator
	logger   *slog.Logger

	agentName    string
	greeting     string
	instructions string
	speech       Speech
	voice        *persona.Voice
	env          *actions.Env
	persister    *transcript.Persister

	ctx    context.Context
	cancel context.CancelFunc

	contextDone chan struct{}
	assembled   contextasm.Assembled

	mu    sync.Mutex
	state State
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Room() string                { return s.room }
func (s *Session) Decision() authz.Decision    { return s.decision }
func (s *Session) Allowed() bool               { return s.decision.Allowed }
func (s *Session) Speech() Speech              { return s.speech }
func (s *Session) Tools() []actions.Definition { return s.orch.Tools() }
func (s *Session) Instructions() string        { return s.instructions }
func (s *Session) AgentName() string           { return s.agentName }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rejection is the stand-in persona for a denied caller: speak Say verbatim,
// then hang up after HangupAfter so the audio flushes.
type Rejection struct {
	Instructions string
	Prompt       string
	Say          string
	HangupAfter  time.Duration
}

func (s *Session) Rejection() (Rejection, bool) {
	if s.decision.Allowed {
		return Rejection{}, false
	}
	return Rejection{
		Instructions: persona.RejectionInstructions,
		Prompt:       persona.RejectionPrompt(),
		Say:          persona.RejectionLine,
		HangupAfter:  s.orch.hangupDelay,
	}, true
}

func (s *Session) assemble(a *contextasm.Assembler, budget time.Duration) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(s.ctx, budget)
	defer cancel()
	got := a.Assemble(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.assembled = got
	if s.state == StateAssemblingContext {
		s.state = StateActive
	}
	s.mu.Unlock()
	close(s.contextDone)

	s.orch.observer.ContextAssembled(len(got.Sections), elapsed)
	s.logger.Info("context assembled",
		"sections", len(got.Sections),
		"omitted", got.Omitted,
		"chars", len(got.String()),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// Opening is the first prompt of an authorized call.
type Opening struct {
	Prompt  string
	Context contextasm.Assembled
}

// OpeningPrompt waits for context assembly, which is itself bounded by the
// context budget, and builds the greeting prompt.
func (s *Session) OpeningPrompt(ctx context.Context) (Opening, error) {
	if !s.decision.Allowed {
		return Opening{}, ErrNotActive
	}
	select {
	case <-s.contextDone:
	case <-ctx.Done():
		return Opening{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StatePersisted {
		return Opening{}, ErrClosed
	}
	return Opening{
		Prompt:  persona.OpeningPrompt(s.assembled.String(), s.greeting),
		Context: s.assembled,
	}, nil
}

// Reply is the speakable result of an action. Voice is set when the action
// changed this session's voice.
type Reply struct {
	Output string
	Voice  *tts.Settings
}

// Invoke runs one action. Actions requested before assembly finishes wait
// for it. The action keeps running if the call ends meanwhile; its external
// side effects are not rolled back.
func (s *Session) Invoke(ctx context.Context, name string, args json.RawMessage) (Reply, error) {
	if err := s.conversational(); err != nil {
		return Reply{}, err
	}
	select {
	case <-s.contextDone:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	if err := s.conversational(); err != nil {
		return Reply{}, err
	}

	before := s.voice.Settings()
	start := time.Now()
	out := s.orch.registry.Dispatch(ctx, s.env, name, args)
	elapsed := time.Since(start)
	s.orch.observer.ActionDone(name, elapsed)
	s.logger.Debug("action done", "action", name, "elapsed_ms", elapsed.Milliseconds())

	reply := Reply{Output: out}
	if after := s.voice.Settings(); after != before {
		reply.Voice = &after
	}
	return reply, nil
}

func (s *Session) conversational() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state.Conversational():
		return nil
	case s.state == StateClosed || s.state == StatePersisted:
		return ErrClosed
	default:
		return ErrNotActive
	}
}

// Close ends the call. Authorized calls are persisted from history; a
// rejected call only closes. The second and later calls return ErrClosed.
func (s *Session) Close(ctx context.Context, history []transcript.Message) (transcript.Record, error) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StatePersisted {
		s.mu.Unlock()
		return transcript.Record{}, ErrClosed
	}
	prev := s.state
	s.state = StateClosed
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	duration := time.Since(s.started)
	s.orch.observer.CallClosed(prev, duration)

	entry := s.auditEntry()
	entry.ClosedAt = time.Now()
	if prev == StateRejected {
		s.orch.auditor.Closed(ctx, entry)
		return transcript.Record{Skipped: true}, nil
	}

	rec := s.persister.Persist(ctx, s.room, history)
	s.orch.observer.Persisted(rec)

	s.mu.Lock()
	s.state = StatePersisted
	s.mu.Unlock()

	entry.Turns = rec.Turns
	entry.RecordPath = rec.Path
	s.orch.auditor.Closed(ctx, entry)
	s.logger.Info("call closed", "turns", rec.Turns, "record", rec.Path, "duration_ms", duration.Milliseconds())
	return rec, nil
}

func (s *Session) auditEntry() AuditEntry {
	return AuditEntry{
		ID:               s.id,
		Room:             s.room,
		CallerRaw:        s.decision.Raw,
		CallerNormalized: s.decision.Normalized,
		Allowed:          s.decision.Allowed,
		Reason:           string(s.decision.Reason),
		StartedAt:        s.started,
	}
}
