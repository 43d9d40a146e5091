package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
	"github.com/vango-go/vai-callagent/pkg/gateway/config"
	"github.com/vango-go/vai-callagent/pkg/gateway/principal"
	"github.com/vango-go/vai-callagent/pkg/gateway/ratelimit"
)

// CallLimit caps concurrent calls per runtime principal. The websocket
// handler blocks for the whole call, so the permit lives as long as the call.
func CallLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" {
			next.ServeHTTP(w, r)
			return
		}

		p := principal.Resolve(r, cfg)
		dec := limiter.AcquireCall(p.Key, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			retryAfter := dec.RetryAfter
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			apierror.Write(w, http.StatusTooManyRequests, &apierror.Error{
				Type:       apierror.TypeRateLimit,
				Message:    "too many concurrent calls",
				RequestID:  reqID,
				RetryAfter: &retryAfter,
			})
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}
