package handler

import (
	"net/http"

	"github.com/planora/hub/internal/schema"
)

// EntitiesHandler lists the registered planner entities so generic
// clients can discover what the command engine accepts.
type EntitiesHandler struct {
	reg *schema.Registry
}

func NewEntitiesHandler(reg *schema.Registry) *EntitiesHandler {
	return &EntitiesHandler{reg: reg}
}

// GET /v1/entities
func (h *EntitiesHandler) List(w http.ResponseWriter, _ *http.Request) {
	entities := []map[string]any{}
	for _, key := range h.reg.KeysUnderNamespace("planner.") {
		d, ok := h.reg.Describe(key)
		if !ok {
			continue
		}
		entities = append(entities, map[string]any{
			"key":        key,
			"selectable": d.Selectable,
			"writable":   d.Writable,
			"required":   d.Required,
			"sortable":   d.Sortable,
			"filterable": d.Filterable,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}
