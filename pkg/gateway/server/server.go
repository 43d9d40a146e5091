package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
	"github.com/vango-go/vai-callagent/pkg/core/session"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/voice/tts"
	"github.com/vango-go/vai-callagent/pkg/gateway/calllog"
	"github.com/vango-go/vai-callagent/pkg/gateway/calls/sessions"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	"github.com/vango-go/vai-callagent/pkg/gateway/handlers"
	"github.com/vango-go/vai-callagent/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-callagent/pkg/gateway/metrics"
	"github.com/vango-go/vai-callagent/pkg/gateway/mw"
	"github.com/vango-go/vai-callagent/pkg/gateway/ratelimit"
)

// Options carries the collaborators that main owns. All are optional.
type Options struct {
	// Store enables the call audit log and GET /v1/call-log.
	Store *calllog.Store
	// Runner replaces the subprocess executor, mainly in tests.
	Runner toolexec.Runner
	// Voices replaces the ElevenLabs catalog.
	Voices tts.Catalog
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	limiter   *ratelimit.Limiter
	lifecycle *lifecycle.Lifecycle
	tracker   *sessions.Tracker
	metrics   *metrics.Metrics
	registry  *actions.Registry
	orch      *session.Orchestrator
	store     *calllog.Store
}

func New(cfg config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := actions.NewStandardRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("build action registry: %w", err)
	}
	m := metrics.New("")
	m.SetActions(registry.Names())

	runner := opts.Runner
	if runner == nil {
		runner = toolexec.New(toolexec.Options{
			Logger:         logger,
			DefaultTimeout: cfg.ToolDefaultTimeout,
			MaxConcurrent:  cfg.ToolMaxConcurrent,
			Leases:         secretLeases(cfg, logger),
			Observer:       m.ToolRun,
		})
	}
	voices := opts.Voices
	if voices == nil && cfg.ElevenLabsAPIKey != "" {
		voices = tts.NewElevenLabs(cfg.ElevenLabsAPIKey).WithBaseURL(cfg.ElevenLabsBaseURL)
	}

	sessOpts := session.Options{
		Logger:            logger,
		Loader:            cfg.AgentLoader(),
		Runner:            runner,
		Registry:          registry,
		Voices:            voices,
		LocalConfigPath:   cfg.AgentConfigPath,
		ContextBudget:     cfg.ContextBudget,
		SourceTimeout:     cfg.ContextSourceTimeout,
		RejectHangupDelay: cfg.RejectHangupDelay,
		Observer:          m,
	}
	if opts.Store != nil {
		sessOpts.Auditor = opts.Store
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		tracker:   sessions.NewTracker(),
		metrics:   m,
		registry:  registry,
		orch:      session.New(sessOpts),
		store:     opts.Store,
		limiter: ratelimit.New(ratelimit.Config{
			MaxConcurrentCalls: cfg.LimitMaxConcurrentCalls,
			ActionRPS:          cfg.LimitActionRPS,
			ActionBurst:        cfg.LimitActionBurst,
		}),
	}

	s.routes()
	return s, nil
}

// secretLeases reads the lease list from the agent configuration once. The
// executor is process-wide, so later edits to the lease list need a restart.
func secretLeases(cfg config.Config, logger *slog.Logger) []*toolexec.Lease {
	agent, err := cfg.AgentLoader().Load()
	if err != nil {
		logger.Warn("agent config unreadable at startup; tools run without secret leases", "error", err)
	}
	leases := make([]*toolexec.Lease, 0, len(agent.Tools.Leases))
	for _, l := range agent.Tools.Leases {
		if l.Env == "" || l.Secret == "" {
			continue
		}
		leases = append(leases, toolexec.NewSecretLease(l.Env, agent.Tools.SecretsCLI, l.Secret, l.TTLDuration()))
	}
	return leases
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Calls:     s.tracker,
	})
	if s.cfg.MetricsEnabled {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	s.mux.Handle("/v1/actions", handlers.ActionsHandler{Registry: s.registry})
	s.mux.Handle("/v1/calls", handlers.CallHandler{
		Config:    s.cfg,
		Calls:     s.orch,
		Logger:    s.logger,
		Limiter:   s.limiter,
		Lifecycle: s.lifecycle,
		Tracker:   s.tracker,
		Metrics:   s.metrics,
	})
	if s.store != nil {
		s.mux.Handle("/v1/call-log", handlers.CallLogHandler{Calls: s.store})
	}
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CallLimit(s.cfg, s.limiter, h)
	h = mw.APIVersion(h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and makes /v1/calls refuse new calls.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WarnLiveCallsDraining tells every live runtime the process is going away.
func (s *Server) WarnLiveCallsDraining() int {
	return s.tracker.WarnAll("draining", "server is shutting down; finish the call soon")
}

// WaitLiveCalls blocks until every call has ended or ctx is done. It reports
// whether the calls drained on their own.
func (s *Server) WaitLiveCalls(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// CancelLiveCalls ends whatever is still running.
func (s *Server) CancelLiveCalls() int {
	return s.tracker.CancelAll()
}

// LiveCalls lists calls in progress, oldest first.
func (s *Server) LiveCalls() []sessions.Info {
	return s.tracker.Snapshot()
}
