package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
)

// Browser-hosted runtimes only ever read.
const corsAllowedMethods = "GET, OPTIONS"

var (
	corsAllowedHeaders = strings.Join([]string{"Authorization", "Content-Type", "X-Request-ID", VersionHeader}, ", ")
	corsExposedHeaders = strings.Join([]string{"X-Request-ID", "Retry-After", VersionHeader}, ", ")
)

// OriginAllowed reports whether a browser origin may use the API. Requests
// without an Origin header are not browser requests and always pass.
func OriginAllowed(allowed map[string]struct{}, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	_, ok := allowed[origin]
	return ok
}

// CORS answers preflights for allowlisted origins and decorates their
// responses. An empty allowlist disables CORS entirely.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	allowed := cfg.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		listed := origin != "" && len(allowed) > 0 && OriginAllowed(allowed, origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !listed {
				reqID, _ := RequestIDFrom(r.Context())
				apierror.Write(w, http.StatusForbidden, &apierror.Error{
					Type:      apierror.TypePermission,
					Message:   "origin is not allowed",
					Param:     "Origin",
					RequestID: reqID,
				})
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if listed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}
		next.ServeHTTP(w, r)
	})
}
