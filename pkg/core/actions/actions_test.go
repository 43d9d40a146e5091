package actions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/persona"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

// fakeRunner answers with the longest matching argv prefix.
type fakeRunner struct {
	mu      sync.Mutex
	answers map[string]toolexec.Result
	calls   []toolexec.Invocation
}

func (f *fakeRunner) Run(_ context.Context, inv toolexec.Invocation) toolexec.Result {
	key := strings.Join(inv.Argv, " ")
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	best, found := "", false
	for prefix := range f.answers {
		if strings.HasPrefix(key, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	if found {
		return f.answers[best]
	}
	return toolexec.Result{Err: "Error: no such tool", Outcome: toolexec.OutcomeError}
}

func (f *fakeRunner) last(t *testing.T) toolexec.Invocation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("runner was not called")
	}
	return f.calls[len(f.calls)-1]
}

func ok(out string) toolexec.Result {
	return toolexec.Result{Output: out, OK: true, Outcome: toolexec.OutcomeOK}
}

type fakeCatalog struct {
	voices []tts.Voice
	err    error
}

func (c fakeCatalog) ListVoices(context.Context) ([]tts.Voice, error) { return c.voices, c.err }

func newEnv(runner *fakeRunner) *Env {
	return &Env{
		Runner:    runner,
		Commands:  commands.Catalog{SystemCLI: "sys", CalendarCLI: "gog", CalendarAccount: "me", TasksCLI: "todo"},
		Clock:     clock.Clock{Location: time.UTC, NowFunc: func() time.Time { return time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC) }},
		Voice:     persona.NewVoice(agentcfg.Defaults().TTS),
		AgentName: "Panda",
		UserLabel: "Joel",
	}
}

func standard(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewStandardRegistry(nil)
	if err != nil {
		t.Fatalf("NewStandardRegistry: %v", err)
	}
	return reg
}

func TestStandard_NamesAreUnique(t *testing.T) {
	t.Parallel()

	reg := standard(t)
	want := []string{
		"check_calendar", "create_calendar_event", "delete_calendar_event",
		"list_tasks", "search_tasks", "add_task", "complete_task", "show_task", "comment_on_task",
		"check_system_health", "system_status", "search_vault", "search_all", "vault_search",
		"discover", "quick_note", "recent_runs", "check_runs", "check_run", "check_email",
		"send_event", "current_time", "vault_read", "recall", "call_owner", "loop_status",
		"loop_start", "vault_list",
		"list_voices", "sample_voices", "switch_voice", "save_voice", "adjust_voice",
	}
	for _, name := range want {
		if !reg.Has(name) {
			t.Fatalf("missing action %q", name)
		}
	}
	if got := len(reg.Names()); got != len(want) {
		t.Fatalf("len(Names())=%d, want %d", got, len(want))
	}
	defs := reg.Definitions()
	if defs[0].Name != "add_task" {
		t.Fatalf("Definitions not sorted: first=%q", defs[0].Name)
	}
	if defs[0].Parameters["type"] != "object" {
		t.Fatalf("parameters=%v", defs[0].Parameters)
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	t.Parallel()

	got := standard(t).Dispatch(context.Background(), newEnv(&fakeRunner{}), "launch_rocket", nil)
	if got != "I don't have an action called launch_rocket." {
		t.Fatalf("got %q", got)
	}
}

func TestDispatch_InvalidArguments(t *testing.T) {
	t.Parallel()

	reg := standard(t)
	runner := &fakeRunner{}
	env := newEnv(runner)
	cases := []struct {
		name string
		raw  string
	}{
		{"add_task", `{}`},
		{"add_task", `{"content":"x","priority":9}`},
		{"check_calendar", `{"days":"seven"}`},
		{"check_calendar", `{"days":"0"}`},
		{"check_calendar", `{"days":"1.5"}`},
	}
	for _, tc := range cases {
		got := reg.Dispatch(context.Background(), env, tc.name, json.RawMessage(tc.raw))
		if !strings.HasPrefix(got, "Invalid arguments for "+tc.name) {
			t.Fatalf("%s %s: got %q", tc.name, tc.raw, got)
		}
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner called %d times for invalid arguments", len(runner.calls))
	}
}

func TestDispatch_HandlerErrorAndPanic(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(nil,
		Action{Name: "boom", FailurePrefix: "Couldn't boom", Handler: func(context.Context, *Env, Args) (string, error) {
			return "", errors.New("fuse wet")
		}},
		Action{Name: "crash", Handler: func(context.Context, *Env, Args) (string, error) {
			panic("bad")
		}},
		Action{Name: "plain", Handler: func(context.Context, *Env, Args) (string, error) {
			return "", errors.New("nope")
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	env := newEnv(&fakeRunner{})
	if got := reg.Dispatch(context.Background(), env, "boom", nil); got != "Couldn't boom: fuse wet" {
		t.Fatalf("boom=%q", got)
	}
	if got := reg.Dispatch(context.Background(), env, "crash", nil); got != "Sorry, crash hit an internal error." {
		t.Fatalf("crash=%q", got)
	}
	if got := reg.Dispatch(context.Background(), env, "plain", nil); got != "Couldn't run plain: nope" {
		t.Fatalf("plain=%q", got)
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	h := func(context.Context, *Env, Args) (string, error) { return "", nil }
	if _, err := NewRegistry(nil, Action{Name: "a", Handler: h}, Action{Name: "a", Handler: h}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewRegistry(nil, Action{Name: "a"}); err == nil {
		t.Fatalf("expected missing handler error")
	}
}

func TestAddTask_Defaults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{answers: map[string]toolexec.Result{"todo add": ok("Added")}}
	got := standard(t).Dispatch(context.Background(), newEnv(runner), "add_task", json.RawMessage(`{"content":"buy milk"}`))
	if got != "Added" {
		t.Fatalf("got %q", got)
	}
	argv := strings.Join(runner.last(t).Argv, " ")
	if !strings.Contains(argv, "voice") {
		t.Fatalf("argv=%q, want default label voice", argv)
	}
}

func TestCheckCalendar_Defaults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{answers: map[string]toolexec.Result{"gog cal events": ok("09:00 standup")}}
	got := standard(t).Dispatch(context.Background(), newEnv(runner), "check_calendar", nil)
	if got != "09:00 standup" {
		t.Fatalf("got %q", got)
	}
	if argv := strings.Join(runner.last(t).Argv, " "); argv != "gog cal events me -a me --plain --today" {
		t.Fatalf("argv=%q", argv)
	}
}

func TestCheckCalendar_NumericStringDays(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{answers: map[string]toolexec.Result{"gog cal events": ok("09:00 standup")}}
	got := standard(t).Dispatch(context.Background(), newEnv(runner), "check_calendar", json.RawMessage(`{"days":" 7 "}`))
	if got != "09:00 standup" {
		t.Fatalf("got %q", got)
	}
	if argv := strings.Join(runner.last(t).Argv, " "); argv != "gog cal events me -a me --plain --from today --days 7" {
		t.Fatalf("argv=%q", argv)
	}
}

func TestFailedCommandIsSpoken(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{answers: map[string]toolexec.Result{
		"sys runs": {Err: "Command failed: boom", Outcome: toolexec.OutcomeFailed},
	}}
	got := standard(t).Dispatch(context.Background(), newEnv(runner), "recent_runs", nil)
	if got != "Command failed: boom" {
		t.Fatalf("got %q", got)
	}
}

func TestSearchActions(t *testing.T) {
	t.Parallel()

	reg := standard(t)
	runner := &fakeRunner{answers: map[string]toolexec.Result{
		"sys search --collection vault_notes": ok(`{"result":{"hits":[]}}`),
		"sys search":                          ok(`{"result":{"hits":[{"title":"ADR 43","snippet":"use livekit"}]}}`),
	}}
	env := newEnv(runner)

	got := reg.Dispatch(context.Background(), env, "search_all", json.RawMessage(`{"query":"livekit"}`))
	if got != "- ADR 43: use livekit" {
		t.Fatalf("search_all=%q", got)
	}
	if runner.last(t).OutputLimit != commands.StructuredOutputLimit {
		t.Fatalf("search output limit=%d", runner.last(t).OutputLimit)
	}
	got = reg.Dispatch(context.Background(), env, "vault_search", json.RawMessage(`{"query":"nothing"}`))
	if got != noVaultHits {
		t.Fatalf("vault_search=%q", got)
	}
}

func TestRecallAndHealth(t *testing.T) {
	t.Parallel()

	reg := standard(t)
	runner := &fakeRunner{answers: map[string]toolexec.Result{
		"sys recall": ok(`{"result":{"hits":[{"observation":"deployed v2","score":0.87}]}}`),
		"sys status": ok(`{"result":{"server":{"ok":true},"worker":{"ok":false}}}`),
	}}
	env := newEnv(runner)

	if got := reg.Dispatch(context.Background(), env, "recall", json.RawMessage(`{"query":"deploy"}`)); got != "[87%] deployed v2" {
		t.Fatalf("recall=%q", got)
	}
	got := reg.Dispatch(context.Background(), env, "check_system_health", nil)
	if !strings.Contains(got, "worker: DOWN") || !strings.Contains(got, "server: healthy") {
		t.Fatalf("health=%q", got)
	}
}

func TestSendEvent_RejectsInvalidData(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	got := standard(t).Dispatch(context.Background(), newEnv(runner), "send_event",
		json.RawMessage(`{"event_name":"system/health.requested","data":"{not json"}`))
	if !strings.HasPrefix(got, "Couldn't send event: ") {
		t.Fatalf("got %q", got)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner called for invalid data")
	}
}

func TestSendEvent_DataMustBeObject(t *testing.T) {
	t.Parallel()

	for _, data := range []string{`[1]`, `42`, `\"hi\"`, `null`, `true`} {
		runner := &fakeRunner{}
		args := `{"event_name":"system/health.requested","data":"` + data + `"}`
		got := standard(t).Dispatch(context.Background(), newEnv(runner), "send_event", json.RawMessage(args))
		if got != "Couldn't send event: data must be a JSON object" {
			t.Fatalf("data=%s: got %q", data, got)
		}
		if len(runner.calls) != 0 {
			t.Fatalf("data=%s: runner called for non-object data", data)
		}
	}

	runner := &fakeRunner{}
	standard(t).Dispatch(context.Background(), newEnv(runner), "send_event",
		json.RawMessage(`{"event_name":"system/health.requested","data":"{\"source\":\"call\"}"}`))
	if len(runner.calls) != 1 {
		t.Fatalf("calls=%d, want 1 for object data", len(runner.calls))
	}
}

func TestCurrentTime(t *testing.T) {
	t.Parallel()

	got := standard(t).Dispatch(context.Background(), newEnv(&fakeRunner{}), "current_time", nil)
	if got != "Monday, March 02, 2026 at 09:05 AM UTC" {
		t.Fatalf("got %q", got)
	}
}
