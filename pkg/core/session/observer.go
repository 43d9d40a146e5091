package session

import (
	"context"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/authz"
	"github.com/vango-go/vai-callagent/pkg/core/contextasm"
	"github.com/vango-go/vai-callagent/pkg/core/transcript"
)

// Observer receives lifecycle measurements. Implementations must be safe for
// concurrent use. CallClosed gets the state the call ended from.
type Observer interface {
	CallDecided(d authz.Decision)
	ContextSource(title string, outcome contextasm.Outcome, elapsed time.Duration)
	ContextAssembled(sections int, elapsed time.Duration)
	ActionDone(name string, elapsed time.Duration)
	CallClosed(state State, duration time.Duration)
	Persisted(rec transcript.Record)
}

type NopObserver struct{}

func (NopObserver) CallDecided(authz.Decision)                              {}
func (NopObserver) ContextSource(string, contextasm.Outcome, time.Duration) {}
func (NopObserver) ContextAssembled(int, time.Duration)                     {}
func (NopObserver) ActionDone(string, time.Duration)                        {}
func (NopObserver) CallClosed(State, time.Duration)                         {}
func (NopObserver) Persisted(transcript.Record)                             {}

// AuditEntry is what the audit log keeps about a call.
type AuditEntry struct {
	ID               string
	Room             string
	CallerRaw        string
	CallerNormalized string
	Allowed          bool
	Reason           string
	StartedAt        time.Time
	ClosedAt         time.Time
	Turns            int
	RecordPath       string
}

// Auditor records decisions and outcomes. Failures are the auditor's to log;
// they never reach the call.
type Auditor interface {
	Decided(ctx context.Context, e AuditEntry)
	Closed(ctx context.Context, e AuditEntry)
}

type NopAuditor struct{}

func (NopAuditor) Decided(context.Context, AuditEntry) {}
func (NopAuditor) Closed(context.Context, AuditEntry)  {}
