package persona

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
)

func TestLoadIdentity_OrderAndMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "USER.md"), []byte("user doc\n"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "IDENTITY.md"), []byte("  id doc "), 0o644)

	got, err := LoadIdentity(dir)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	want := "--- IDENTITY.md ---\nid doc\n\n--- USER.md ---\nuser doc"
	if got != want {
		t.Fatalf("LoadIdentity=%q, want %q", got, want)
	}
}

func TestInstructions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "SOUL.md"), []byte("be kind"), 0o644)
	cfg := agentcfg.Defaults()
	cfg.Paths.SoulDir = dir
	cfg.Agent.Style = "Dry humour."
	clk := clock.Clock{Location: time.UTC, NowFunc: func() time.Time { return time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC) }}

	got, err := Instructions(cfg, clk)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if !strings.HasPrefix(got, "--- SOUL.md ---\nbe kind\n\n## CURRENT TIME: Monday, March 02, 2026 at 03:30 PM UTC") {
		t.Fatalf("Instructions prefix=%q", got[:120])
	}
	if !strings.HasSuffix(got, "## Vibe\n\nDry humour.") {
		t.Fatalf("Instructions missing style block")
	}
}

func TestOpeningPrompt(t *testing.T) {
	t.Parallel()

	got := OpeningPrompt("## Current Time\nnow", "Hey!")
	want := "The user just connected to a voice call. Here's your current context:\n\n## Current Time\nnow\n\nGreet them naturally — something like: Hey!\nIf there's anything notable (calendar items soon, system alerts), mention it briefly."
	if got != want {
		t.Fatalf("OpeningPrompt=%q", got)
	}
}

func TestRejectionPrompt(t *testing.T) {
	t.Parallel()

	if got := RejectionPrompt(); got != "Say exactly: 'This number is not accepting calls at this time. Goodbye.' Then stop talking." {
		t.Fatalf("RejectionPrompt=%q", got)
	}
}

func TestVoice_AdjustKeepsNegatives(t *testing.T) {
	t.Parallel()

	v := NewVoice(agentcfg.Defaults().TTS)
	s, desc, err := v.Adjust(Adjustment{Stability: 0.3, Similarity: -1, Style: -1, Speed: 1.1})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if desc != "stability=0.3, speed=1.1" {
		t.Fatalf("desc=%q", desc)
	}
	if s.Stability != 0.3 || s.SimilarityBoost != 0.75 || s.Speed != 1.1 {
		t.Fatalf("settings=%+v", s)
	}

	_, desc, err = v.Adjust(Adjustment{Stability: -1, Similarity: -1, Style: -1, Speed: -1})
	if err != nil || desc != "" {
		t.Fatalf("no-op Adjust desc=%q err=%v", desc, err)
	}
}

func TestVoice_AdjustRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	v := NewVoice(agentcfg.Defaults().TTS)
	if _, _, err := v.Adjust(Adjustment{Stability: -1, Similarity: -1, Style: -1, Speed: 3}); err == nil {
		t.Fatalf("expected range error")
	}
	if got := v.Settings().Speed; got != 1.0 {
		t.Fatalf("Speed=%v, want unchanged 1.0", got)
	}
}

func TestVoice_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	a := NewVoice(agentcfg.Defaults().TTS)
	b := NewVoice(agentcfg.Defaults().TTS)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.SwitchVoice("other")
		}()
	}
	wg.Wait()

	if a.Settings().VoiceID != "other" {
		t.Fatalf("a.VoiceID=%q", a.Settings().VoiceID)
	}
	if b.Settings().VoiceID != b.OriginalVoiceID() {
		t.Fatalf("b.VoiceID=%q, want untouched", b.Settings().VoiceID)
	}
	if _, err := a.SwitchVoice("  "); err == nil {
		t.Fatalf("expected empty voice error")
	}
}
