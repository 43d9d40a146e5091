package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/session"
	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
)

const maxCallLogLimit = 200

// CallLister is the read side of the audit log.
type CallLister interface {
	Recent(ctx context.Context, limit int) ([]session.AuditEntry, error)
}

// CallLogHandler lists recent call decisions, newest first.
type CallLogHandler struct {
	Calls CallLister
}

type callLogEntry struct {
	ID               string     `json:"id"`
	Room             string     `json:"room"`
	CallerNormalized string     `json:"caller_normalized,omitempty"`
	Allowed          bool       `json:"allowed"`
	Reason           string     `json:"reason,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	Turns            int        `json:"turns"`
	RecordPath       string     `json:"record_path,omitempty"`
}

func (h CallLogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxCallLogLimit {
			writeError(w, r, http.StatusBadRequest, &apierror.Error{
				Type:    apierror.TypeInvalidRequest,
				Message: "limit must be between 1 and " + strconv.Itoa(maxCallLogLimit),
				Param:   "limit",
			})
			return
		}
		limit = n
	}

	entries, err := h.Calls.Recent(r.Context(), limit)
	if err != nil {
		apiErr, status := apierror.FromError(err, "")
		writeError(w, r, status, apiErr)
		return
	}

	out := make([]callLogEntry, 0, len(entries))
	for _, e := range entries {
		item := callLogEntry{
			ID:               e.ID,
			Room:             e.Room,
			CallerNormalized: e.CallerNormalized,
			Allowed:          e.Allowed,
			Reason:           e.Reason,
			StartedAt:        e.StartedAt,
			Turns:            e.Turns,
			RecordPath:       e.RecordPath,
		}
		if !e.ClosedAt.IsZero() {
			closed := e.ClosedAt
			item.ClosedAt = &closed
		}
		out = append(out, item)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		Object string         `json:"object"`
		Data   []callLogEntry `json:"data"`
	}{Object: "list", Data: out})
}
