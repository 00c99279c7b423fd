package handlers

import (
	"net/http"

	"github.com/openalpha/options-exchange/api/middleware"
	"github.com/openalpha/options-exchange/exchange/positions"
)

// PositionHandler serves position queries.
type PositionHandler struct {
	store *positions.Store
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(store *positions.Store) *PositionHandler {
	return &PositionHandler{store: store}
}

// HandlePositions handles /positions (GET)
func (h *PositionHandler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	team, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, h.store.Snapshot(team.TeamID))
}
