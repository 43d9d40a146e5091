package tts

import (
	"fmt"
	"strings"
)

// Settings is the synthesis configuration the runtime applies to the
// current session.
type Settings struct {
	VoiceID         string  `json:"voice_id"`
	Model           string  `json:"model"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
}

const (
	MinSpeed = 0.7
	MaxSpeed = 1.3
)

func (s Settings) Validate() error {
	if strings.TrimSpace(s.VoiceID) == "" {
		return fmt.Errorf("voice id must not be empty")
	}
	if err := unit("stability", s.Stability); err != nil {
		return err
	}
	if err := unit("similarity", s.SimilarityBoost); err != nil {
		return err
	}
	if err := unit("style", s.Style); err != nil {
		return err
	}
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return fmt.Errorf("speed must be between %.1f and %.1f", MinSpeed, MaxSpeed)
	}
	return nil
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1", name)
	}
	return nil
}

// SampleVoice is a curated voice offered when the caller wants to audition.
type SampleVoice struct {
	ID          string
	Name        string
	Description string
}

var SampleVoices = []SampleVoice{
	{"bIHbv24MWmeRgasZH58o", "Will", "calm friendly male"},
	{"EXAVITQu4vr4xnSDxMaL", "Sarah", "warm conversational female"},
	{"FGY2WhTYpPnrIDTdsKH5", "Laura", "clear professional female"},
	{"IKne3meq5aSn9XLyUdCD", "Charlie", "casual natural male"},
	{"JBFqnCBsd6RMkjVDRZzb", "George", "deep authoritative male"},
	{"TX3LPaxmHKxFdv7VOQHJ", "Liam", "young energetic male"},
	{"XB0fDUnXU5powFXDhCwa", "Charlotte", "bright expressive female"},
	{"pFZP5JQG7iQjIQuC4Bku", "Lily", "warm british female"},
	{"onwK4e9ZLuTAKqWW03F9", "Daniel", "deep british male"},
	{"nPczCjzI2devNBz1zQrb", "Brian", "deep american male"},
}
