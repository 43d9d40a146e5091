package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAPIVersion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		method     string
		path       string
		versions   []string
		upgrade    bool
		wantStatus int
		wantStamp  bool
	}{
		{name: "no header", method: http.MethodGet, path: "/v1/actions", wantStatus: http.StatusNoContent, wantStamp: true},
		{name: "supported", method: http.MethodGet, path: "/v1/actions", versions: []string{"1"}, wantStatus: http.StatusNoContent, wantStamp: true},
		{name: "whitespace and duplicates", method: http.MethodGet, path: "/v1/call-log", versions: []string{" 1 ", "1, 1"}, wantStatus: http.StatusNoContent, wantStamp: true},
		{name: "unsupported", method: http.MethodGet, path: "/v1/actions", versions: []string{"2"}, wantStatus: http.StatusBadRequest, wantStamp: true},
		{name: "mixed", method: http.MethodGet, path: "/v1/actions", versions: []string{"1,2"}, wantStatus: http.StatusBadRequest, wantStamp: true},
		{name: "health path", method: http.MethodGet, path: "/healthz", versions: []string{"2"}, wantStatus: http.StatusNoContent},
		{name: "call upgrade", method: http.MethodGet, path: "/v1/calls", versions: []string{"2"}, upgrade: true, wantStatus: http.StatusNoContent},
		{name: "preflight", method: http.MethodOptions, path: "/v1/actions", versions: []string{"2"}, wantStatus: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			req := httptest.NewRequest(tc.method, tc.path, nil).WithContext(WithRequestID(context.Background(), "req_v"))
			for _, v := range tc.versions {
				req.Header.Add(VersionHeader, v)
			}
			if tc.upgrade {
				req.Header.Set("Connection", "keep-alive, Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status=%d, want %d body=%q", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if got := rr.Header().Get(VersionHeader) == "1"; got != tc.wantStamp {
				t.Fatalf("%s stamped=%v, want %v", VersionHeader, got, tc.wantStamp)
			}
		})
	}
}

func TestAPIVersion_RejectionEnvelope(t *testing.T) {
	t.Parallel()

	h := APIVersion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not run for an unsupported version")
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil).WithContext(WithRequestID(context.Background(), "req_abc123"))
	req.Header.Set(VersionHeader, "2")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	body := rr.Body.String()
	for _, want := range []string{
		`"type":"invalid_request_error"`,
		`"code":"unsupported_version"`,
		`"param":"X-Callagent-Version"`,
		`"request_id":"req_abc123"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %s: %q", want, body)
		}
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/calls", nil)
	if IsWebSocketUpgrade(req) {
		t.Fatalf("plain GET reported as upgrade")
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "h2c")
	if IsWebSocketUpgrade(req) {
		t.Fatalf("h2c upgrade reported as websocket")
	}
	req.Header.Set("Upgrade", "WebSocket")
	if !IsWebSocketUpgrade(req) {
		t.Fatalf("websocket upgrade not detected")
	}
}
