package handlers

import (
	"net/http"

	"github.com/vango-go/vai-callagent/pkg/gateway/apierror"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, &apierror.Error{
		Type:    apierror.TypeNotFound,
		Message: "not found",
	})
}
