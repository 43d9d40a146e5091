package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/vango-go/vai-callagent/pkg/gateway/calls/sessions"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	"github.com/vango-go/vai-callagent/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether new calls should be routed here. A draining
// process is alive but not ready.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Calls     *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool       `json:"ok"`
		Draining      bool       `json:"draining"`
		DrainingSince *time.Time `json:"draining_since,omitempty"`
		AuthMode      string     `json:"auth_mode"`
		LiveCalls     int        `json:"live_calls"`
		LimitsEnabled bool       `json:"limits_enabled"`
		AuditLog      bool       `json:"audit_log"`
		Issues        []string   `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.CallMaxJSONMessageBytes <= 0 {
		issues = append(issues, "max_json_message_bytes must be > 0")
	}
	if h.Config.CallHandshakeTimeout <= 0 || h.Config.CallWSWriteTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ContextBudget <= 0 {
		issues = append(issues, "context budget must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	since, draining := h.Lifecycle.DrainingSince()
	limitsEnabled := h.Config.LimitMaxConcurrentCalls > 0 ||
		(h.Config.LimitActionRPS > 0 && h.Config.LimitActionBurst > 0)

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	switch {
	case len(issues) > 0:
		status = http.StatusInternalServerError
	case draining:
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		Draining:      draining,
		DrainingSince: drainingSince(since, draining),
		AuthMode:      string(h.Config.AuthMode),
		LiveCalls:     h.Calls.Count(),
		LimitsEnabled: limitsEnabled,
		AuditLog:      h.Config.DatabaseURL != "",
		Issues:        issues,
	})
}

func drainingSince(t time.Time, draining bool) *time.Time {
	if !draining {
		return nil
	}
	t = t.UTC()
	return &t
}
