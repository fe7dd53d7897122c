package handler

import (
	"net/http"

	"github.com/planora/hub/internal/command"
	"github.com/planora/hub/internal/middleware"
	"github.com/planora/hub/internal/schema"
)

// CommandHandler exposes the command engine to slot-filling dispatchers
// (assistant frontends, automations). The engine's outcome envelope is
// returned verbatim; expected failures are HTTP 200 with ok=false.
type CommandHandler struct {
	svc *command.Service
}

func NewCommandHandler(svc *command.Service) *CommandHandler {
	return &CommandHandler{svc: svc}
}

// POST /v1/command
func (h *CommandHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verb  string         `json:"verb"`
		Slots map[string]any `json:"slots"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "invalid body")
		return
	}
	if req.Verb == "" {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", "verb is required")
		return
	}

	actor := schema.ActingContext{}
	if user := middleware.UserFromCtx(r.Context()); user != nil {
		actor.UserID = user.UserID
		actor.TeamID = user.CurrentTeamID
	}

	out, err := h.svc.Execute(r.Context(), actor, req.Verb, req.Slots)
	if err != nil {
		// Infrastructure failure, not an engine outcome.
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}
