// Package session drives one call from authorization to the persisted
// transcript. The conversation runtime owns audio and turns; a Session
// answers its questions and runs its actions.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vango-go/vai-callagent/internal/fsx"
	"github.com/vango-go/vai-callagent/pkg/core/actions"
	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
	"github.com/vango-go/vai-callagent/pkg/core/authz"
	"github.com/vango-go/vai-callagent/pkg/core/clock"
	"github.com/vango-go/vai-callagent/pkg/core/commands"
	"github.com/vango-go/vai-callagent/pkg/core/contextasm"
	"github.com/vango-go/vai-callagent/pkg/core/persona"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
)

const (
	DefaultContextBudget     = 12 * time.Second
	DefaultRejectHangupDelay = 5 * time.Second
)

// ConfigLoader resolves the agent configuration. It is called once per call.
type ConfigLoader interface {
	Load() (agentcfg.Config, error)
}

// Options wires an Orchestrator. Runner, Registry and Loader are required.
type Options struct {
	Logger   *slog.Logger
	Loader   ConfigLoader
	Runner   toolexec.Runner
	Registry *actions.Registry
	// Voices backs list_voices. Nil leaves the action answering with an error.
	Voices tts.Catalog
	// Bus receives call-completed events. Nil means the system CLI.
	Bus transcript.EventBus
	// LocalConfigPath is where save_voice writes.
	LocalConfigPath string

	ContextBudget     time.Duration
	SourceTimeout     time.Duration
	RejectHangupDelay time.Duration

	Observer Observer
	Auditor  Auditor
	NewID    func() string
}

type Orchestrator struct {
	logger    *slog.Logger
	loader    ConfigLoader
	runner    toolexec.Runner
	registry  *actions.Registry
	voices    tts.Catalog
	bus       transcript.EventBus
	localPath string
	gate      *authz.Gate

	budget        time.Duration
	sourceTimeout time.Duration
	hangupDelay   time.Duration

	observer Observer
	auditor  Auditor
	newID    func() string
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		logger:        opts.Logger,
		loader:        opts.Loader,
		runner:        opts.Runner,
		registry:      opts.Registry,
		voices:        opts.Voices,
		bus:           opts.Bus,
		localPath:     fsx.ExpandHome(opts.LocalConfigPath),
		budget:        opts.ContextBudget,
		sourceTimeout: opts.SourceTimeout,
		hangupDelay:   opts.RejectHangupDelay,
		observer:      opts.Observer,
		auditor:       opts.Auditor,
		newID:         opts.NewID,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.loader == nil {
		o.loader = agentcfg.Loader{}
	}
	if o.budget <= 0 {
		o.budget = DefaultContextBudget
	}
	if o.hangupDelay <= 0 {
		o.hangupDelay = DefaultRejectHangupDelay
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.auditor == nil {
		o.auditor = NopAuditor{}
	}
	if o.newID == nil {
		o.newID = func() string { return "call_" + uuid.NewString() }
	}
	o.gate = authz.NewGate(o.logger)
	return o
}

// Tools lists the actions offered on an authorized call.
func (o *Orchestrator) Tools() []actions.Definition {
	return o.registry.Definitions()
}

// Begin authorizes room and, when allowed, starts context assembly in the
// background. ctx bounds the whole call; Close cancels whatever is left.
//
// The returned Session is Rejected or AssemblingContext.
func (o *Orchestrator) Begin(ctx context.Context, room string) *Session {
	cfg, err := o.loader.Load()
	if err != nil {
		// The lower layers are still usable and carry no callers of their
		// own, so a broken override file cannot widen the allowlist.
		o.logger.Warn("agent config partially loaded", "room", room, "error", err)
	}

	s := &Session{
		id:          o.newID(),
		room:        room,
		started:     time.Now(),
		state:       StateIncoming,
		orch:        o,
		contextDone: make(chan struct{}),
	}
	s.logger = o.logger.With("session_id", s.id)

	allow := authz.BuildAllowlist(cfg.Security.AllowedCallers, cfg.AllowedCallersEnv)
	s.decision = o.gate.Check(room, allow)
	o.observer.CallDecided(s.decision)
	o.auditor.Decided(ctx, s.auditEntry())

	if !s.decision.Allowed {
		s.state = StateRejected
		s.speech = Speech{TTS: ttsSettings(cfg.TTS), LLM: &LLM{Model: cfg.LLM.Model}}
		close(s.contextDone)
		return s
	}

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		s.logger.Warn("falling back to default timezone", "error", err)
		clk, _ = clock.New(clock.DefaultZone)
	}
	instructions, err := persona.Instructions(cfg, clk)
	if err != nil {
		s.logger.Warn("identity documents incomplete", "error", err)
	}

	cmds := commands.Catalog{
		SystemCLI:       cfg.Tools.SystemCLI,
		CalendarCLI:     cfg.Tools.CalendarCLI,
		CalendarAccount: cfg.Tools.CalendarAccount,
		TasksCLI:        cfg.Tools.TasksCLI,
	}
	s.agentName = cfg.Agent.Name
	s.greeting = cfg.Agent.Greeting
	s.instructions = instructions
	s.voice = persona.NewVoice(cfg.TTS)
	s.speech = fullSpeech(cfg, s.voice.Settings())
	s.env = &actions.Env{
		Runner:    o.runner,
		Commands:  cmds,
		Clock:     clk,
		Voice:     s.voice,
		Voices:    o.voices,
		AgentName: cfg.Agent.Name,
		UserLabel: cfg.Agent.UserLabel,
		SaveVoice: o.saveVoice,
	}

	bus := o.bus
	if bus == nil {
		bus = transcript.CLIBus{Runner: o.runner, Commands: cmds}
	}
	s.persister = transcript.New(transcript.Options{
		Dir:       cfg.Paths.TranscriptDir,
		Bus:       bus,
		Clock:     clk,
		Logger:    s.logger,
		UserLabel: cfg.Agent.UserLabel,
		AgentName: cfg.Agent.Name,
	})

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateAssemblingContext

	assembler := contextasm.New(contextasm.Options{
		Logger:        s.logger,
		SourceTimeout: o.sourceTimeout,
		Observer:      o.observer.ContextSource,
	}, contextasm.Standard(clk, cfg.Paths.MemoryFile, o.runner, cmds)...)
	go s.assemble(assembler, o.budget)

	return s
}

func (o *Orchestrator) saveVoice(voiceID string) (string, error) {
	if err := agentcfg.SaveVoiceID(o.localPath, voiceID); err != nil {
		return "", err
	}
	return o.localPath, nil
}
