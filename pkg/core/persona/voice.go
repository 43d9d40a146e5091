package persona

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

// Voice is the mutable synthesis configuration of exactly one session.
// Handlers of that session change it; no other session can see it.
type Voice struct {
	mu       sync.Mutex
	current  tts.Settings
	original string
}

func NewVoice(cfg agentcfg.TTS) *Voice {
	return &Voice{
		current: tts.Settings{
			VoiceID:         cfg.VoiceID,
			Model:           cfg.Model,
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
			Style:           cfg.Style,
			Speed:           cfg.Speed,
		},
		original: cfg.VoiceID,
	}
}

func (v *Voice) Settings() tts.Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// OriginalVoiceID is the voice the session started with.
func (v *Voice) OriginalVoiceID() string {
	return v.original
}

func (v *Voice) SwitchVoice(id string) (tts.Settings, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return tts.Settings{}, fmt.Errorf("voice id must not be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current.VoiceID = id
	return v.current, nil
}

// Adjustment changes voice parameters. Negative values keep the current one.
type Adjustment struct {
	Stability  float64
	Similarity float64
	Style      float64
	Speed      float64
}

// Adjust applies a and returns the new settings with a description of what
// changed. An adjustment with nothing to change returns an empty description.
func (v *Voice) Adjust(a Adjustment) (tts.Settings, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.current
	var desc []string
	set := func(name string, val float64, dst *float64) {
		if val < 0 {
			return
		}
		*dst = val
		desc = append(desc, name+"="+strconv.FormatFloat(val, 'f', -1, 64))
	}
	set("stability", a.Stability, &next.Stability)
	set("similarity", a.Similarity, &next.SimilarityBoost)
	set("style", a.Style, &next.Style)
	set("speed", a.Speed, &next.Speed)

	if len(desc) == 0 {
		return v.current, "", nil
	}
	if err := next.Validate(); err != nil {
		return v.current, "", err
	}
	v.current = next
	return next, strings.Join(desc, ", "), nil
}
