package handlers

import (
	"net/http"

	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
	"github.com/vango-go/vai-callagent/pkg/gateway/mw"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, e *apierror.Error) {
	if e.RequestID == "" {
		e.RequestID, _ = mw.RequestIDFrom(r.Context())
	}
	apierror.Write(w, status, e)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, r, http.StatusMethodNotAllowed, &apierror.Error{
		Type:    apierror.TypeInvalidRequest,
		Message: "method not allowed",
		Code:    "method_not_allowed",
	})
}
