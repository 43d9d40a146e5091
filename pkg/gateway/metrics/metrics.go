// Package metrics exposes call, action, context, and transcript metrics in
// Prometheus format.
package metrics

import (
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/vai-callagent/pkg/core/authz"
	"github.com/vango-go/vai-callagent/pkg/core/contextasm"
	"github.com/vango-go/vai-callagent/pkg/core/session"
	"github.com/vango-go/vai-callagent/pkg/core/toolexec"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
)

// Metrics holds all Prometheus metrics for the call agent. It implements
// session.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Call metrics
	CallsTotal   *prometheus.CounterVec
	CallsActive  prometheus.Gauge
	CallDuration *prometheus.HistogramVec

	// Context metrics
	ContextSourcesTotal    *prometheus.CounterVec
	ContextSourceDuration  *prometheus.HistogramVec
	ContextAssemblySeconds prometheus.Histogram
	ContextSections        prometheus.Histogram

	// Action and subprocess metrics
	ActionsTotal     *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec
	ToolRunsTotal    *prometheus.CounterVec
	ToolRunDuration  *prometheus.HistogramVec
	TranscriptsTotal *prometheus.CounterVec

	// Websocket metrics
	ProtocolErrors *prometheus.CounterVec
	RateLimitHits  *prometheus.CounterVec

	mu      sync.RWMutex
	actions map[string]struct{}
}

var _ session.Observer = (*Metrics)(nil)

// New creates a Metrics instance with every collector registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vai_callagent"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Calls by authorization decision",
			},
			[]string{"decision"},
		),
		CallsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_active",
				Help:      "Calls decided but not yet closed",
			},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Call duration in seconds by the state the call ended from",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"state"},
		),
		ContextSourcesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "context_sources_total",
				Help:      "Context source fetches by outcome",
			},
			[]string{"source", "outcome"},
		),
		ContextSourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "context_source_duration_seconds",
				Help:      "Context source fetch duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"source"},
		),
		ContextAssemblySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "context_assembly_duration_seconds",
				Help:      "Time from authorization until the opening context is ready",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12, 15},
			},
		),
		ContextSections: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "context_sections",
				Help:      "Non-empty sections in the opening context",
				Buckets:   []float64{0, 1, 2, 3, 4, 5},
			},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Action invocations",
			},
			[]string{"action"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Action duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"action"},
		),
		ToolRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_runs_total",
				Help:      "External tool invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_run_duration_seconds",
				Help:      "External tool run duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		TranscriptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcripts_total",
				Help:      "Transcript persistence results",
			},
			[]string{"written", "emitted"},
		),
		ProtocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_errors_total",
				Help:      "Websocket protocol errors sent to runtimes",
			},
			[]string{"code"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits",
			},
			[]string{"limit_type"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CallsTotal,
		m.CallsActive,
		m.CallDuration,
		m.ContextSourcesTotal,
		m.ContextSourceDuration,
		m.ContextAssemblySeconds,
		m.ContextSections,
		m.ActionsTotal,
		m.ActionDuration,
		m.ToolRunsTotal,
		m.ToolRunDuration,
		m.TranscriptsTotal,
		m.ProtocolErrors,
		m.RateLimitHits,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetActions bounds the action label. Names outside the set, which a runtime
// can send freely, are counted as "unknown".
func (m *Metrics) SetActions(names []string) {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	m.mu.Lock()
	m.actions = set
	m.mu.Unlock()
}

func (m *Metrics) actionLabel(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.actions == nil {
		return name
	}
	if _, ok := m.actions[name]; ok {
		return name
	}
	return "unknown"
}

func (m *Metrics) CallDecided(d authz.Decision) {
	decision := "allowed"
	if !d.Allowed {
		decision = string(d.Reason)
	}
	m.CallsTotal.WithLabelValues(decision).Inc()
	m.CallsActive.Inc()
}

func (m *Metrics) ContextSource(title string, outcome contextasm.Outcome, elapsed time.Duration) {
	m.ContextSourcesTotal.WithLabelValues(title, string(outcome)).Inc()
	m.ContextSourceDuration.WithLabelValues(title).Observe(elapsed.Seconds())
}

func (m *Metrics) ContextAssembled(sections int, elapsed time.Duration) {
	m.ContextAssemblySeconds.Observe(elapsed.Seconds())
	m.ContextSections.Observe(float64(sections))
}

func (m *Metrics) ActionDone(name string, elapsed time.Duration) {
	label := m.actionLabel(name)
	m.ActionsTotal.WithLabelValues(label).Inc()
	m.ActionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) CallClosed(state session.State, duration time.Duration) {
	m.CallsActive.Dec()
	m.CallDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
}

func (m *Metrics) Persisted(rec transcript.Record) {
	if rec.Skipped {
		m.TranscriptsTotal.WithLabelValues("skipped", "skipped").Inc()
		return
	}
	m.TranscriptsTotal.WithLabelValues(strconv.FormatBool(rec.Written), strconv.FormatBool(rec.Emitted)).Inc()
}

// ToolRun has the toolexec.Observer signature. Only the program's base name
// is used as a label.
func (m *Metrics) ToolRun(name string, outcome toolexec.Outcome, elapsed time.Duration) {
	tool := filepath.Base(name)
	m.ToolRunsTotal.WithLabelValues(tool, string(outcome)).Inc()
	m.ToolRunDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordProtocolError records an error frame sent to a runtime.
func (m *Metrics) RecordProtocolError(code string) {
	m.ProtocolErrors.WithLabelValues(code).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limitType string) {
	m.RateLimitHits.WithLabelValues(limitType).Inc()
}
