package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/authz"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
)

type staticLoader struct {
	cfg agentcfg.Config
	err error
}

func (l staticLoader) Load() (agentcfg.Config, error) { return l.cfg, l.err }

// failingRunner fails every command, or blocks until release is closed.
type failingRunner struct {
	release chan struct{}
}

func (r failingRunner) Run(context.Context, toolexec.Invocation) toolexec.Result {
	if r.release != nil {
		<-r.release
	}
	return toolexec.Result{Err: "Error: not installed", Outcome: toolexec.OutcomeError}
}

type recordingAuditor struct {
	mu      sync.Mutex
	decided []AuditEntry
	closed  []AuditEntry
}

func (a *recordingAuditor) Decided(_ context.Context, e AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decided = append(a.decided, e)
}

func (a *recordingAuditor) Closed(_ context.Context, e AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = append(a.closed, e)
}

type countingBus struct {
	mu    sync.Mutex
	count int
}

func (b *countingBus) Emit(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return nil
}

func testConfig(t *testing.T, callers ...string) agentcfg.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := agentcfg.Defaults()
	cfg.Timezone = "UTC"
	cfg.Security.AllowedCallers = callers
	cfg.Paths.SoulDir = filepath.Join(dir, "soul")
	cfg.Paths.MemoryFile = filepath.Join(dir, "MEMORY.md")
	cfg.Paths.TranscriptDir = filepath.Join(dir, "voice")
	if err := os.WriteFile(cfg.Paths.MemoryFile, []byte("remember the milk"), 0o644); err != nil {
		t.Fatalf("write memory: %v", err)
	}
	return cfg
}

func newOrchestrator(t *testing.T, loader ConfigLoader, runner toolexec.Runner, opts Options) *Orchestrator {
	t.Helper()
	reg, err := actions.NewStandardRegistry(nil)
	if err != nil {
		t.Fatalf("NewStandardRegistry: %v", err)
	}
	opts.Loader = loader
	opts.Runner = runner
	opts.Registry = reg
	return New(opts)
}

func TestBegin_RejectsUnknownCaller(t *testing.T) {
	t.Parallel()

	auditor := &recordingAuditor{}
	o := newOrchestrator(t, staticLoader{cfg: testConfig(t)}, failingRunner{}, Options{Auditor: auditor})
	s := o.Begin(context.Background(), "voice-_sip:unknown@host_xyz")

	if s.State() != StateRejected || s.Allowed() {
		t.Fatalf("state=%q allowed=%v", s.State(), s.Allowed())
	}
	if s.Decision().Reason != authz.ReasonUnknown {
		t.Fatalf("reason=%q, want %q", s.Decision().Reason, authz.ReasonUnknown)
	}
	rej, ok := s.Rejection()
	if !ok || rej.Say != "This number is not accepting calls at this time. Goodbye." || rej.HangupAfter != DefaultRejectHangupDelay {
		t.Fatalf("rejection=%+v ok=%v", rej, ok)
	}
	if s.Speech().VAD != nil {
		t.Fatalf("rejection speech should use runtime VAD defaults")
	}
	if _, err := s.Invoke(context.Background(), "current_time", nil); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Invoke err=%v, want ErrNotActive", err)
	}
	if _, err := s.OpeningPrompt(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("OpeningPrompt err=%v, want ErrNotActive", err)
	}
	rec, err := s.Close(context.Background(), nil)
	if err != nil || !rec.Skipped {
		t.Fatalf("Close rec=%+v err=%v", rec, err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state=%q, want closed", s.State())
	}
	if _, err := s.Close(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("second Close err=%v, want ErrClosed", err)
	}
	if len(auditor.decided) != 1 || auditor.decided[0].Reason != "unknown" || auditor.decided[0].Allowed {
		t.Fatalf("decided=%+v", auditor.decided)
	}
	if len(auditor.closed) != 1 {
		t.Fatalf("closed=%d, want 1", len(auditor.closed))
	}
}

func TestBegin_BrokenConfigStaysClosed(t *testing.T) {
	t.Parallel()

	loader := staticLoader{cfg: agentcfg.Defaults(), err: errors.New("parse agent config: bad yaml")}
	s := newOrchestrator(t, loader, failingRunner{}, Options{}).Begin(context.Background(), "voice-_18005551234_xyz")
	if s.Allowed() || s.State() != StateRejected {
		t.Fatalf("state=%q allowed=%v", s.State(), s.Allowed())
	}
}

func TestSession_AuthorizedLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "+1 (800) 555-1234")
	bus := &countingBus{}
	auditor := &recordingAuditor{}
	o := newOrchestrator(t, staticLoader{cfg: cfg}, failingRunner{}, Options{
		Bus:     bus,
		Auditor: auditor,
		NewID:   func() string { return "call_test" },
	})
	s := o.Begin(context.Background(), "voice-_18005551234_xyz")
	if !s.Allowed() || s.ID() != "call_test" {
		t.Fatalf("allowed=%v id=%q", s.Allowed(), s.ID())
	}
	if s.Decision().Normalized != "8005551234" {
		t.Fatalf("normalized=%q", s.Decision().Normalized)
	}
	if !strings.Contains(s.Instructions(), "## Voice Conversation Rules") {
		t.Fatalf("instructions missing voice rules")
	}
	if sp := s.Speech(); sp.VAD == nil || sp.VAD.ActivationThreshold != 0.85 || sp.LLM == nil {
		t.Fatalf("speech=%+v", sp)
	}

	opening, err := s.OpeningPrompt(context.Background())
	if err != nil {
		t.Fatalf("OpeningPrompt: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("state=%q, want active", s.State())
	}
	if !strings.Contains(opening.Prompt, "## Current Time") || !strings.Contains(opening.Prompt, "## Current Memory\nremember the milk") {
		t.Fatalf("prompt=%q", opening.Prompt)
	}
	if strings.Contains(opening.Prompt, "## Calendar") {
		t.Fatalf("failed calendar should be omitted: %q", opening.Prompt)
	}
	if !strings.Contains(opening.Prompt, "something like: Hey, it's Panda. What's up?") {
		t.Fatalf("prompt=%q", opening.Prompt)
	}

	reply, err := s.Invoke(context.Background(), "switch_voice", json.RawMessage(`{"voice_id":"abc"}`))
	if err != nil || reply.Output != "Voice switched to abc." || reply.Voice == nil || reply.Voice.VoiceID != "abc" {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}
	reply, err = s.Invoke(context.Background(), "check_email", nil)
	if err != nil || reply.Output != "Error: not installed" || reply.Voice != nil {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}

	history := []transcript.Message{
		{Role: "user", Content: "check my email"},
		{Role: "assistant", Content: "the mail tool is not installed"},
	}
	rec, err := s.Close(context.Background(), history)
	if err != nil || !rec.Written || !rec.Emitted || rec.Turns != 2 {
		t.Fatalf("Close rec=%+v err=%v", rec, err)
	}
	if s.State() != StatePersisted {
		t.Fatalf("state=%q, want persisted", s.State())
	}
	if bus.count != 1 {
		t.Fatalf("events=%d, want 1", bus.count)
	}
	if _, err := s.Invoke(context.Background(), "current_time", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Invoke after close err=%v, want ErrClosed", err)
	}
	if len(auditor.closed) != 1 || auditor.closed[0].RecordPath != rec.Path || auditor.closed[0].Turns != 2 {
		t.Fatalf("closed=%+v", auditor.closed)
	}
}

func TestSession_SessionsDoNotShareVoice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "8005551234")
	o := newOrchestrator(t, staticLoader{cfg: cfg}, failingRunner{}, Options{Bus: &countingBus{}})
	a := o.Begin(context.Background(), "voice-_8005551234_a")
	b := o.Begin(context.Background(), "voice-_8005551234_b")

	if _, err := a.Invoke(context.Background(), "switch_voice", json.RawMessage(`{"voice_id":"abc"}`)); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	reply, err := b.Invoke(context.Background(), "adjust_voice", json.RawMessage(`{"speed":1.2}`))
	if err != nil || reply.Voice == nil {
		t.Fatalf("reply=%+v err=%v", reply, err)
	}
	if reply.Voice.VoiceID != cfg.TTS.VoiceID {
		t.Fatalf("session b voice=%q, want %q", reply.Voice.VoiceID, cfg.TTS.VoiceID)
	}
}

func TestSession_OpeningPromptRespectsBudget(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	cfg := testConfig(t, "8005551234")
	o := newOrchestrator(t, staticLoader{cfg: cfg}, failingRunner{release: release}, Options{
		ContextBudget: 100 * time.Millisecond,
		Bus:           &countingBus{},
	})
	s := o.Begin(context.Background(), "voice-_8005551234_x")

	start := time.Now()
	opening, err := s.OpeningPrompt(context.Background())
	if err != nil {
		t.Fatalf("OpeningPrompt: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("OpeningPrompt waited %s", elapsed)
	}
	if !strings.Contains(opening.Prompt, "## Current Time") {
		t.Fatalf("local sections should survive slow tools: %q", opening.Prompt)
	}
	if len(opening.Context.Omitted) != 3 {
		t.Fatalf("omitted=%v, want the three tool-backed sections", opening.Context.Omitted)
	}
}

func TestSession_CloseDuringAssembly(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	cfg := testConfig(t, "8005551234")
	o := newOrchestrator(t, staticLoader{cfg: cfg}, failingRunner{release: release}, Options{Bus: &countingBus{}})
	s := o.Begin(context.Background(), "voice-_8005551234_x")

	rec, err := s.Close(context.Background(), []transcript.Message{{Role: "user", Content: "hello?"}})
	if err != nil || !rec.Skipped {
		t.Fatalf("Close rec=%+v err=%v", rec, err)
	}
	if _, err := s.OpeningPrompt(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("OpeningPrompt err=%v, want ErrClosed", err)
	}
}
