package transcript

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

	"github.com/vango-go/vai-callagent/pkg/core/clock"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
)

type recordingBus struct {
	mu     sync.Mutex
	names  []string
	events []Completed
	err    error
}

func (b *recordingBus) Emit(_ context.Context, name string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var c Completed
	if err := json.Unmarshal(payload, &c); err != nil {
		return err
	}
	b.names = append(b.names, name)
	b.events = append(b.events, c)
	return b.err
}

func fixedClock() clock.Clock {
	return clock.Clock{Location: time.UTC, NowFunc: func() time.Time { return time.Date(2026, 3, 2, 9, 5, 7, 0, time.UTC) }}
}

func newPersister(dir string, bus EventBus) *Persister {
	return New(Options{Dir: dir, Bus: bus, Clock: fixedClock(), UserLabel: "Joel", AgentName: "Panda"})
}

func history(t *testing.T, raw string) []Message {
	t.Helper()
	var h []Message
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	return h
}

func TestContent_StringOrParts(t *testing.T) {
	t.Parallel()

	h := history(t, `[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":[{"text":"hello"},{"type":"audio"},{"text":"there"}]},
		{"role":"system","content":null}
	]`)
	if h[0].Content != "hi" {
		t.Fatalf("content[0]=%q", h[0].Content)
	}
	if h[1].Content != "hello  there" {
		t.Fatalf("content[1]=%q, want %q", h[1].Content, "hello  there")
	}
	if h[2].Content != "" {
		t.Fatalf("content[2]=%q", h[2].Content)
	}

	var bad []Message
	if err := json.Unmarshal([]byte(`[{"role":"user","content":5}]`), &bad); err == nil {
		t.Fatalf("expected error for numeric content")
	}
}

func TestTurnsAndRender(t *testing.T) {
	t.Parallel()

	turns := Turns([]Message{
		{Role: "user", Content: "what's on today"},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "standup at nine"},
	}, "Joel", "Panda")
	if len(turns) != 2 {
		t.Fatalf("len(turns)=%d, want 2", len(turns))
	}
	want := "**Joel**: what's on today\n\n**Panda**: standup at nine"
	if got := Render(turns); got != want {
		t.Fatalf("Render=%q, want %q", got, want)
	}
}

func TestPersist_SingleTurnIsSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bus := &recordingBus{}
	rec := newPersister(dir, bus).Persist(context.Background(), "voice-_1_x", []Message{{Role: "user", Content: "hello?"}})
	if !rec.Skipped {
		t.Fatalf("expected skipped, got %+v", rec)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 || len(bus.events) != 0 {
		t.Fatalf("files=%d events=%d, want none", len(entries), len(bus.events))
	}
}

func TestPersist_WritesOneRecordAndOneEvent(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "voice")
	bus := &recordingBus{}
	h := []Message{
		{Role: "user", Content: "hey"},
		{Role: "assistant", Content: "hi Joel"},
		{Role: "assistant", Content: ""},
	}
	rec := newPersister(dir, bus).Persist(context.Background(), "voice-_18005551234_xyz", h)
	if !rec.Written || !rec.Emitted || rec.Turns != 2 {
		t.Fatalf("record=%+v", rec)
	}
	if want := filepath.Join(dir, "2026-03-02-090507.md"); rec.Path != want {
		t.Fatalf("path=%q, want %q", rec.Path, want)
	}
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	want := "---\ntype: voice-call\ndate: 2026-03-02T09:05:07Z\nroom: voice-_18005551234_xyz\n---\n\n" +
		"# Voice Call — 2026-03-02-090507\n\n**Joel**: hey\n\n**Panda**: hi Joel\n"
	if string(data) != want {
		t.Fatalf("record=%q, want %q", data, want)
	}

	if len(bus.events) != 1 || bus.names[0] != EventCallCompleted {
		t.Fatalf("events=%v", bus.names)
	}
	ev := bus.events[0]
	if ev.Turns != 2 || ev.Room != "voice-_18005551234_xyz" || ev.Timestamp != "2026-03-02-090507" {
		t.Fatalf("event=%+v", ev)
	}
	if len(ev.IdempotencyKey) != 64 {
		t.Fatalf("idempotency key=%q", ev.IdempotencyKey)
	}
}

func TestPersist_SameSecondDoesNotOverwrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := newPersister(dir, &recordingBus{})
	h := []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}
	first := p.Persist(context.Background(), "r1", h)
	second := p.Persist(context.Background(), "r2", h)
	if first.Path == second.Path {
		t.Fatalf("both records at %q", first.Path)
	}
	if filepath.Base(second.Path) != "2026-03-02-090507-2.md" {
		t.Fatalf("second path=%q", second.Path)
	}
}

func TestPersist_FailuresAreContained(t *testing.T) {
	t.Parallel()

	h := []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}

	bus := &recordingBus{err: errors.New("bus down")}
	rec := newPersister(t.TempDir(), bus).Persist(context.Background(), "r", h)
	if !rec.Written || rec.Emitted {
		t.Fatalf("record=%+v, want written and not emitted", rec)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bus = &recordingBus{}
	rec = newPersister(filepath.Join(blocker, "voice"), bus).Persist(context.Background(), "r", h)
	if rec.Written || !rec.Emitted {
		t.Fatalf("record=%+v, want emitted and not written", rec)
	}
}

func TestPersist_TruncatesEventTranscript(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	long := strings.Repeat("é", 6000)
	h := []Message{{Role: "user", Content: Content(long)}, {Role: "assistant", Content: "ok"}}
	newPersister(t.TempDir(), bus).Persist(context.Background(), "r", h)
	if n := len([]rune(bus.events[0].Transcript)); n != EventTranscriptLimit {
		t.Fatalf("event transcript runes=%d, want %d", n, EventTranscriptLimit)
	}
}

func TestCompleted_EncodeIsCanonicalAndStable(t *testing.T) {
	t.Parallel()

	c := Completed{Transcript: "**Joel**: <hi>", Room: "r", Timestamp: "t", Turns: 2}
	a, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, _ := c.Encode()
	if string(a) != string(b) {
		t.Fatalf("encode not stable: %s vs %s", a, b)
	}
	if !strings.HasPrefix(string(a), `{"idempotency_key":"`) || !strings.Contains(string(a), `"transcript":"**Joel**: <hi>"`) {
		t.Fatalf("payload=%s", a)
	}
}

type cliRunner struct{ got toolexec.Invocation }

func (r *cliRunner) Run(_ context.Context, inv toolexec.Invocation) toolexec.Result {
	r.got = inv
	return toolexec.Result{Err: "Command failed: nope", Outcome: toolexec.OutcomeFailed}
}

func TestCLIBus(t *testing.T) {
	t.Parallel()

	r := &cliRunner{}
	bus := CLIBus{Runner: r, Commands: commands.Catalog{SystemCLI: "sys"}}
	err := bus.Emit(context.Background(), EventCallCompleted, []byte(`{"a":1}`))
	if err == nil || err.Error() != "Command failed: nope" {
		t.Fatalf("err=%v", err)
	}
	if got := strings.Join(r.got.Argv, " "); got != `sys send voice/call.completed -d {"a":1}` {
		t.Fatalf("argv=%q", got)
	}
}
