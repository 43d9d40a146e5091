package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-callagent/pkg/core/actions"
)

func TestActionsHandler_ListsCatalog(t *testing.T) {
	t.Parallel()

	reg, err := actions.NewStandardRegistry(nil)
	if err != nil {
		t.Fatalf("NewStandardRegistry: %v", err)
	}
	rr := httptest.NewRecorder()
	ActionsHandler{Registry: reg}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/actions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	var resp struct {
		Object string               `json:"object"`
		Data   []actions.Definition `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != len(reg.Names()) {
		t.Fatalf("object=%q len=%d, want list/%d", resp.Object, len(resp.Data), len(reg.Names()))
	}
	for _, d := range resp.Data {
		if d.Name == "add_task" {
			if d.Parameters["type"] != "object" {
				t.Fatalf("add_task parameters=%v", d.Parameters)
			}
			return
		}
	}
	t.Fatalf("add_task missing from catalog")
}

func TestActionsHandler_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	ActionsHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/actions", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != http.MethodGet {
		t.Fatalf("Allow=%q", got)
	}
}
