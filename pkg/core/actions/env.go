package actions

import (
	"github.com/vango-go/vai-callagent/pkg/core/clock"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/persona"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

// Env is what a handler may touch. One Env belongs to one session; Voice in
// particular is that session's own settings.
type Env struct {
	Runner   toolexec.Runner
	Commands commands.Catalog
	Clock    clock.Clock
	Voice    *persona.Voice
	Voices   tts.Catalog

	AgentName string
	UserLabel string

	// SaveVoice persists a default voice for future calls and returns the
	// file it wrote.
	SaveVoice func(voiceID string) (string, error)
}
