// Package principal identifies who opened a request for per-runtime limits
// and logging.
package principal

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/gateway/auth"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	"github.com/vango-go/vai-callagent/pkg/gateway/ratelimit"
)

type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIP     Kind = "ip"
	KindAnon   Kind = "anonymous"
)

// Resolved is a request's identity. Raw is the API key or client IP and
// must not be logged; the LogValue form leaves it out.
type Resolved struct {
	Kind Kind
	Raw  string
	// Key is a hashed or bucketed identifier for in-memory maps.
	Key string
	// ID is the loggable label: the key fingerprint or the client IP.
	ID string
}

func (p Resolved) LogValue() slog.Value {
	return slog.GroupValue(slog.String("kind", string(p.Kind)), slog.String("id", p.ID))
}

var anonymous = Resolved{Kind: KindAnon, Key: "anonymous", ID: "anonymous"}

// proxyHeaders are consulted in order when proxy headers are trusted.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

func Resolve(r *http.Request, cfg config.Config) Resolved {
	if r == nil {
		return anonymous
	}

	if p, ok := auth.PrincipalFrom(r.Context()); ok && strings.TrimSpace(p.APIKey) != "" {
		id := p.ID
		if id == "" {
			id = auth.NewPrincipal(p.APIKey).ID
		}
		return Resolved{
			Kind: KindAPIKey,
			Raw:  p.APIKey,
			Key:  ratelimit.PrincipalKeyFromAPIKey(p.APIKey),
			ID:   id,
		}
	}

	ip := ClientIP(r, cfg.TrustProxyHeaders)
	if ip == "" {
		return anonymous
	}
	return Resolved{
		Kind: KindIP,
		Raw:  ip,
		Key:  ratelimit.PrincipalKeyFromIP(ip),
		ID:   ip,
	}
}

// ClientIP returns the caller's address. Proxy headers only count when the
// gateway sits behind a trusted proxy; otherwise RemoteAddr is used.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if r == nil {
		return ""
	}

	if trustProxyHeaders {
		for _, name := range proxyHeaders {
			raw := strings.TrimSpace(r.Header.Get(name))
			if raw == "" {
				continue
			}
			// X-Forwarded-For is "client, proxy1, proxy2".
			first, _, _ := strings.Cut(raw, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
	}
	return parseIP(r.RemoteAddr)
}

// parseIP accepts a bare address or "ip:port" and returns the canonical form.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
