package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-callagent/pkg/core/session"
)

type fakeLister struct {
	entries []session.AuditEntry
	err     error
	limit   int
}

func (f *fakeLister) Recent(_ context.Context, limit int) ([]session.AuditEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

func TestCallLogHandler_ListsEntries(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{entries: []session.AuditEntry{
		{ID: "call_2", Room: "r2", Reason: "unknown", CallerRaw: "+15550000000", StartedAt: started.Add(time.Minute)},
		{ID: "call_1", Room: "r1", Allowed: true, StartedAt: started, ClosedAt: started.Add(2 * time.Minute), Turns: 4},
	}}

	rr := httptest.NewRecorder()
	CallLogHandler{Calls: lister}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/call-log?limit=5", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if lister.limit != 5 {
		t.Fatalf("limit=%d, want 5", lister.limit)
	}

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("len=%d, want 2", len(resp.Data))
	}
	if _, ok := resp.Data[0]["closed_at"]; ok {
		t.Fatalf("open call should omit closed_at: %v", resp.Data[0])
	}
	if _, ok := resp.Data[0]["caller_raw"]; ok {
		t.Fatalf("raw caller tokens are not exposed: %v", resp.Data[0])
	}
	if resp.Data[1]["turns"] != float64(4) {
		t.Fatalf("turns=%v", resp.Data[1]["turns"])
	}
}

func TestCallLogHandler_BadLimit(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"0", "abc", "1000"} {
		rr := httptest.NewRecorder()
		CallLogHandler{Calls: &fakeLister{}}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/call-log?limit="+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s status=%d, want 400", q, rr.Code)
		}
	}
}

func TestCallLogHandler_StoreErrorHidden(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	CallLogHandler{Calls: &fakeLister{err: errors.New("pq: password authentication failed")}}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/call-log", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
	if body := rr.Body.String(); !json.Valid([]byte(body)) || strings.Contains(body, "password") {
		t.Fatalf("body leaked store error: %q", body)
	}
}

