// Package persona builds what the conversation runtime says and how it
// sounds: the system instructions, the opening prompt and the voice.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
)

// IdentityFiles are read from the soul directory in this order.
var IdentityFiles = []string{"IDENTITY.md", "SOUL.md", "USER.md"}

const (
	RejectionInstructions = "You are a voicemail system."
	RejectionLine         = "This number is not accepting calls at this time. Goodbye."
)

// RejectionPrompt makes the stand-in persona speak the rejection line verbatim.
func RejectionPrompt() string {
	return "Say exactly: '" + RejectionLine + "' Then stop talking."
}

// LoadIdentity renders the identity documents as "--- NAME ---" sections.
// Missing files are skipped.
func LoadIdentity(dir string) (string, error) {
	var sections []string
	for _, name := range IdentityFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		sections = append(sections, "--- "+name+" ---\n"+strings.TrimSpace(string(data)))
	}
	return strings.Join(sections, "\n\n"), nil
}

// VoiceRules adapts a chat persona to a phone call. now is the spoken time.
func VoiceRules(user, now string) string {
	if user == "" {
		user = "the user"
	}
	return fmt.Sprintf(`## CURRENT TIME: %[2]s

The current time for %[1]s is %[2]s. Use this when discussing schedules, "tonight", "this morning", "later today". Do not say you don't know the time.

## Voice Conversation Rules

You are speaking over the phone. Adapt your personality for VOICE:

- Keep responses to 1-3 sentences. This is a phone call, not a text chat.
- Don't read out URLs, JSON, code, or technical IDs. Summarize instead.
- For lists of more than 3 items, give the top 3 and offer to continue.
- Numbers and times should be spoken naturally: "three thirty" not "15:30".
- If asked to do something you can't do by voice, offer to add it as a task and use add_task.
- You have tools for %[1]s's calendar, tasks, system health, vault search, email, and events.
- You can list available voices, sample them, and switch your voice mid-conversation.
- The current date and time is available via the current_time tool.`, user, now)
}

// Instructions is the full system prompt for an authorized call.
func Instructions(cfg agentcfg.Config, clk clock.Clock) (string, error) {
	identity, err := LoadIdentity(cfg.Paths.SoulDir)
	parts := make([]string, 0, 3)
	if identity != "" {
		parts = append(parts, identity)
	}
	parts = append(parts, VoiceRules(cfg.Agent.UserLabel, clk.Spoken()))
	if style := strings.TrimSpace(cfg.Agent.Style); style != "" {
		parts = append(parts, "## Vibe\n\n"+style)
	}
	return strings.Join(parts, "\n\n"), err
}

// OpeningPrompt asks the runtime to greet the caller with context in hand.
func OpeningPrompt(context, greeting string) string {
	return "The user just connected to a voice call. Here's your current context:\n\n" +
		context + "\n\n" +
		"Greet them naturally — something like: " + greeting + "\n" +
		"If there's anything notable (calendar items soon, system alerts), mention it briefly."
}
