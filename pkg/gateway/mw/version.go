package mw

import (
	"net/http"
	"slices"
	"strings"

	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
	"github.com/vango-go/vai-callagent/pkg/gateway/calls/protocol"
)

// VersionHeader pins the HTTP API version. The call websocket carries its
// version in the hello frame instead, so upgrades are not checked here.
const VersionHeader = "X-Callagent-Version"

// APIVersion rejects /v1 requests that ask for a version other than the one
// served, and stamps the served version on every /v1 response.
func APIVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || IsWebSocketUpgrade(r) || !isV1Path(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(VersionHeader, protocol.ProtocolVersion1)
		requested := headerTokens(r.Header, VersionHeader)
		if slices.ContainsFunc(requested, func(v string) bool { return v != protocol.ProtocolVersion1 }) {
			reqID, _ := RequestIDFrom(r.Context())
			apierror.Write(w, http.StatusBadRequest, &apierror.Error{
				Type:      apierror.TypeInvalidRequest,
				Message:   "unsupported API version; this call agent serves version " + protocol.ProtocolVersion1,
				Param:     VersionHeader,
				Code:      "unsupported_version",
				RequestID: reqID,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isV1Path(path string) bool {
	return path == "/v1" || strings.HasPrefix(path, "/v1/")
}

// IsWebSocketUpgrade reports a websocket handshake request.
func IsWebSocketUpgrade(r *http.Request) bool {
	connection := headerTokens(r.Header, "Connection")
	if !slices.ContainsFunc(connection, func(v string) bool { return strings.EqualFold(v, "upgrade") }) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket")
}

// headerTokens splits every value of a comma-separated header and drops
// empty entries.
func headerTokens(h http.Header, name string) []string {
	var out []string
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
