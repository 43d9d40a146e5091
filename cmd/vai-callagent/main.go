package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/vai-callagent/pkg/gateway/calllog"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-callagent/pkg/gateway/server"
)

type agentDeps struct {
	loadConfig   func() (config.Config, error)
	openCallLog  func(context.Context, string, *slog.Logger) (*calllog.Store, error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Options) (*gatewayserver.Server, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAgentDeps() agentDeps {
	return agentDeps{
		loadConfig:  config.LoadFromEnv,
		openCallLog: calllog.Open,
		newGateway:  gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runAgent(ctx context.Context, logger *slog.Logger, deps agentDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var opts gatewayserver.Options
	if cfg.DatabaseURL != "" && deps.openCallLog != nil {
		store, err := deps.openCallLog(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("open call log: %w", err)
		}
		defer store.Close()
		opts.Store = store
	}

	gw, err := deps.newGateway(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting call agent",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"audit_log", opts.Store != nil,
		"metrics", cfg.MetricsEnabled,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	warned := gw.WarnLiveCallsDraining()
	logger.Info("draining live calls", "warned", warned, "grace", cfg.ShutdownGracePeriod)

	// Calls are hijacked connections, so Shutdown does not wait for them.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitLiveCalls(waitCtx) {
		for _, c := range gw.LiveCalls() {
			logger.Warn("call still live after grace period", "call_id", c.ID, "room", c.Room, "age", time.Since(c.Since).Round(time.Second))
		}
		canceled := gw.CancelLiveCalls()
		logger.Warn("grace period elapsed; cancelled live calls", "canceled", canceled)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("call agent stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps agentDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "vai-callagent: load .env: %v\n", err)
		return 1
	}

	if err := runAgent(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "vai-callagent: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAgentDeps()))
}
