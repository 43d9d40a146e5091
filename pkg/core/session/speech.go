package session

import (
	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

// Speech is the pipeline configuration handed to the conversation runtime.
// A nil VAD means the runtime's own defaults.
type Speech struct {
	TTS tts.Settings `json:"tts"`
	LLM *LLM         `json:"llm,omitempty"`
	VAD *VAD         `json:"vad,omitempty"`
}

type LLM struct {
	Model string `json:"model"`
}

type VAD struct {
	ActivationThreshold float64 `json:"activation_threshold"`
	MinSpeechDuration   float64 `json:"min_speech_duration"`
	MinSilenceDuration  float64 `json:"min_silence_duration"`
}

func ttsSettings(c agentcfg.TTS) tts.Settings {
	return tts.Settings{
		VoiceID:         c.VoiceID,
		Model:           c.Model,
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		Speed:           c.Speed,
	}
}

func fullSpeech(cfg agentcfg.Config, voice tts.Settings) Speech {
	return Speech{
		TTS: voice,
		LLM: &LLM{Model: cfg.LLM.Model},
		VAD: &VAD{
			ActivationThreshold: cfg.VAD.ActivationThreshold,
			MinSpeechDuration:   cfg.VAD.MinSpeechDuration,
			MinSilenceDuration:  cfg.VAD.MinSilenceDuration,
		},
	}
}
