package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
)

// ActionsHandler serves the action catalog offered to authorized calls.
type ActionsHandler struct {
	Registry *actions.Registry
}

func (h ActionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	type actionsResp struct {
		Object string               `json:"object"`
		Data   []actions.Definition `json:"data"`
	}
	defs := h.Registry.Definitions()
	if defs == nil {
		defs = []actions.Definition{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(actionsResp{Object: "list", Data: defs})
}
