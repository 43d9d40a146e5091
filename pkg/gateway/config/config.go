package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/agentcfg"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

// Config is the process-level configuration. It is read once at startup;
// the per-call agent configuration is resolved through AgentLoader.
type Config struct {
	Addr string

	// Conversation runtimes authenticate with a bearer key.
	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// Browser-hosted runtimes; empty => only non-browser clients.
	CORSAllowedOrigins map[string]struct{}

	// Call websocket (/v1/calls).
	CallMaxJSONMessageBytes int64
	CallHandshakeTimeout    time.Duration
	CallWSWriteTimeout      time.Duration
	CallWSPingInterval      time.Duration
	CallMaxDuration         time.Duration

	// How long the opening prompt waits for context before going out with
	// whatever sections have arrived.
	ContextBudget        time.Duration
	ContextSourceTimeout time.Duration
	// Rejected callers hear the rejection line, then the call ends after this.
	RejectHangupDelay time.Duration

	// Subprocess limits.
	ToolDefaultTimeout time.Duration
	ToolMaxConcurrent  int

	// In-memory limits (per principal / per call).
	LimitMaxConcurrentCalls int
	LimitActionRPS          float64
	LimitActionBurst        int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	MetricsEnabled bool

	// Optional call audit log. Empty => disabled.
	DatabaseURL string

	// Voice catalog.
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string

	// Agent configuration layers.
	AgentDefaultConfigPath string
	AgentConfigPath        string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("VAI_CALLAGENT_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("VAI_CALLAGENT_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                 make(map[string]struct{}),
		TrustProxyHeaders:       envBoolOr("VAI_CALLAGENT_TRUST_PROXY_HEADERS", false),
		CORSAllowedOrigins:      make(map[string]struct{}),
		CallMaxJSONMessageBytes: envInt64Or("VAI_CALLAGENT_MAX_JSON_MESSAGE_BYTES", 256*1024),
		CallHandshakeTimeout:    envDurationOr("VAI_CALLAGENT_HANDSHAKE_TIMEOUT", 5*time.Second),
		CallWSWriteTimeout:      envDurationOr("VAI_CALLAGENT_WS_WRITE_TIMEOUT", 5*time.Second),
		CallWSPingInterval:      envDurationOr("VAI_CALLAGENT_WS_PING_INTERVAL", 20*time.Second),
		CallMaxDuration:         envDurationOr("VAI_CALLAGENT_MAX_CALL_DURATION", 2*time.Hour),
		ContextBudget:           envDurationOr("VAI_CALLAGENT_CONTEXT_BUDGET", 12*time.Second),
		ContextSourceTimeout:    envDurationOr("VAI_CALLAGENT_CONTEXT_SOURCE_TIMEOUT", 15*time.Second),
		RejectHangupDelay:       envDurationOr("VAI_CALLAGENT_REJECT_HANGUP_DELAY", 5*time.Second),
		ToolDefaultTimeout:      envDurationOr("VAI_CALLAGENT_TOOL_TIMEOUT", 30*time.Second),
		ToolMaxConcurrent:       envIntOr("VAI_CALLAGENT_TOOL_MAX_CONCURRENT", 16),
		LimitMaxConcurrentCalls: envIntOr("VAI_CALLAGENT_MAX_CONCURRENT_CALLS", 4),
		LimitActionRPS:          envFloat64Or("VAI_CALLAGENT_ACTION_RPS", 2.0),
		LimitActionBurst:        envIntOr("VAI_CALLAGENT_ACTION_BURST", 6),
		ReadHeaderTimeout:       envDurationOr("VAI_CALLAGENT_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("VAI_CALLAGENT_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:     envDurationOr("VAI_CALLAGENT_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsEnabled:          envBoolOr("VAI_CALLAGENT_METRICS", true),
		DatabaseURL:             strings.TrimSpace(os.Getenv("VAI_CALLAGENT_DATABASE_URL")),
		ElevenLabsAPIKey:        strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsBaseURL:       envOr("VAI_CALLAGENT_ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		AgentDefaultConfigPath:  envOr("VAI_CALLAGENT_DEFAULT_CONFIG", "config.default.yaml"),
		AgentConfigPath:         envOr("VAI_CALLAGENT_CONFIG", agentcfg.DefaultLocalPath()),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("VAI_CALLAGENT_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("VAI_CALLAGENT_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("VAI_CALLAGENT_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.CallMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.CallHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.CallWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.CallWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_WS_PING_INTERVAL must be > 0")
	}
	if cfg.CallMaxDuration <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_MAX_CALL_DURATION must be > 0")
	}
	if cfg.ContextBudget <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_CONTEXT_BUDGET must be > 0")
	}
	if cfg.ContextSourceTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_CONTEXT_SOURCE_TIMEOUT must be > 0")
	}
	if cfg.RejectHangupDelay < 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_REJECT_HANGUP_DELAY must be >= 0")
	}
	if cfg.ToolDefaultTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_TOOL_TIMEOUT must be > 0")
	}
	if cfg.ToolMaxConcurrent < 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_TOOL_MAX_CONCURRENT must be >= 0")
	}
	if cfg.LimitMaxConcurrentCalls < 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_MAX_CONCURRENT_CALLS must be >= 0")
	}
	if cfg.LimitActionRPS < 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_ACTION_RPS must be >= 0")
	}
	if cfg.LimitActionBurst < 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_ACTION_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if strings.TrimSpace(cfg.ElevenLabsBaseURL) == "" {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_ELEVENLABS_BASE_URL must not be empty")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("VAI_CALLAGENT_API_KEYS must be set when VAI_CALLAGENT_AUTH_MODE=required")
	}

	return cfg, nil
}

// AgentLoader resolves the agent configuration layers named by c.
func (c Config) AgentLoader() agentcfg.Loader {
	return agentcfg.Loader{
		DefaultPath: c.AgentDefaultConfigPath,
		LocalPath:   c.AgentConfigPath,
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
