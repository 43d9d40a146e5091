package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/core/persona"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

const listVoicesMax = 15

func voiceActions() []Action {
	voiceID := []Param{{Name: "voice_id", Type: String, Required: true}}
	unit := func(name string) Param {
		return Param{Name: name, Type: Number, Default: -1.0, Maximum: bound(1)}
	}
	return []Action{
		{
			Name:          "list_voices",
			Description:   "List available voices. Use this when the owner wants to hear voice options.",
			FailurePrefix: "Couldn't list voices",
			Handler:       listVoices,
		},
		{
			Name: "sample_voices",
			Description: "Sample different voices by speaking a test phrase in each one. " +
				"Returns the voices; switch to each one, say its name, speak the phrase, then switch back.",
			Params:  []Param{{Name: "phrase", Type: String}},
			Handler: sampleVoices,
		},
		{
			Name:          "switch_voice",
			Description:   "Switch the voice mid-conversation. Use a voice ID from list_voices or sample_voices.",
			Params:        voiceID,
			FailurePrefix: "Couldn't switch voice",
			Handler: func(_ context.Context, env *Env, args Args) (string, error) {
				if env.Voice == nil {
					return "", errors.New("voice is not configurable on this call")
				}
				s, err := env.Voice.SwitchVoice(args.String("voice_id"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Voice switched to %s.", s.VoiceID), nil
			},
		},
		{
			Name:          "save_voice",
			Description:   "Save a voice as the default in the local agent config.",
			Params:        voiceID,
			FailurePrefix: "Couldn't save",
			Handler: func(_ context.Context, env *Env, args Args) (string, error) {
				if env.SaveVoice == nil {
					return "", errors.New("no local config is writable")
				}
				id := args.String("voice_id")
				if id == "" {
					return "", errors.New("voice id must not be empty")
				}
				path, err := env.SaveVoice(id)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Voice %s saved to %s.", id, path), nil
			},
		},
		{
			Name:        "adjust_voice",
			Description: "Adjust voice settings. Values 0.0-1.0 (speed: 0.7-1.3). Pass -1 to keep current.",
			Params: []Param{
				unit("stability"),
				unit("similarity"),
				unit("style"),
				{Name: "speed", Type: Number, Default: -1.0, Maximum: bound(tts.MaxSpeed)},
			},
			FailurePrefix: "Couldn't adjust voice",
			Handler: func(_ context.Context, env *Env, args Args) (string, error) {
				if env.Voice == nil {
					return "", errors.New("voice is not configurable on this call")
				}
				_, desc, err := env.Voice.Adjust(persona.Adjustment{
					Stability:  args.Float("stability"),
					Similarity: args.Float("similarity"),
					Style:      args.Float("style"),
					Speed:      args.Float("speed"),
				})
				if err != nil {
					return "", err
				}
				if desc == "" {
					return "No settings changed. Pass stability, similarity, style, or speed.", nil
				}
				return "Voice adjusted: " + desc, nil
			},
		},
	}
}

func listVoices(ctx context.Context, env *Env, _ Args) (string, error) {
	if env.Voices == nil {
		return "", errors.New("no voice catalog configured")
	}
	voices, err := env.Voices.ListVoices(ctx)
	if err != nil {
		return "", err
	}
	shown := voices
	if len(shown) > listVoicesMax {
		shown = shown[:listVoicesMax]
	}
	var b strings.Builder
	b.WriteString("Available voices:")
	for _, v := range shown {
		fmt.Fprintf(&b, "\n- %s (%s): %s", v.Name, v.Category, v.ID)
	}
	if len(voices) > listVoicesMax {
		fmt.Fprintf(&b, "\n... and %d more", len(voices)-listVoicesMax)
	}
	return b.String(), nil
}

func sampleVoices(_ context.Context, env *Env, args Args) (string, error) {
	phrase := args.String("phrase")
	if phrase == "" {
		phrase = fmt.Sprintf("Hey %s, it's %s. How's it going?", env.UserLabel, env.AgentName)
	}
	original := ""
	if env.Voice != nil {
		original = env.Voice.OriginalVoiceID()
	}
	var b strings.Builder
	b.WriteString("Here are voices to sample. For each one:\n")
	b.WriteString("1. Call switch_voice with the voice_id\n")
	fmt.Fprintf(&b, "2. Say the voice name, then speak: \"%s\"\n", phrase)
	b.WriteString("3. Pause briefly between voices\n")
	fmt.Fprintf(&b, "After all samples, switch back to the original voice (%s) and ask which one %s preferred.\n\n", original, env.UserLabel)
	b.WriteString("Voices:")
	for _, v := range tts.SampleVoices {
		fmt.Fprintf(&b, "\n- %s (%s): voice_id=%s", v.Name, v.Description, v.ID)
	}
	return b.String(), nil
}
