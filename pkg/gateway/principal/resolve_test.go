package principal

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-callagent/pkg/gateway/auth"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
)

func TestResolve_APIKeyWins(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/calls", nil)
	r = r.WithContext(auth.WithPrincipal(r.Context(), auth.NewPrincipal("vai_sk_a")))
	got := Resolve(r, config.Config{})
	if got.Kind != KindAPIKey || !strings.HasPrefix(got.Key, "k_") || !strings.HasPrefix(got.ID, "key_") {
		t.Fatalf("Resolve=%+v", got)
	}
}

func TestResolve_ProxyHeadersOnlyWhenTrusted(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/calls", nil)
	r.RemoteAddr = "10.0.0.5:4123"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := Resolve(r, config.Config{}); got.ID != "10.0.0.5" {
		t.Fatalf("untrusted ID=%q, want RemoteAddr", got.ID)
	}
	if got := Resolve(r, config.Config{TrustProxyHeaders: true}); got.ID != "203.0.113.9" || got.Kind != KindIP {
		t.Fatalf("trusted=%+v, want left-most forwarded address", got)
	}

	r.Header.Set("CF-Connecting-IP", "198.51.100.7")
	if got := ClientIP(r, true); got != "198.51.100.7" {
		t.Fatalf("ClientIP=%q, want CF-Connecting-IP", got)
	}
}

func TestResolve_UnparseableAddressIsAnonymous(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/calls", nil)
	r.RemoteAddr = "not-an-ip"
	if got := Resolve(r, config.Config{}); got.Kind != KindAnon {
		t.Fatalf("Resolve=%+v, want anonymous", got)
	}
}

func TestResolved_LogValueOmitsRaw(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/calls", nil)
	r = r.WithContext(auth.WithPrincipal(r.Context(), auth.NewPrincipal("vai_sk_secret")))

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("call", "principal", Resolve(r, config.Config{}))
	if out := buf.String(); strings.Contains(out, "vai_sk_secret") || !strings.Contains(out, "principal.kind=api_key") {
		t.Fatalf("log=%q", out)
	}
}
