package handlers

import (
	"net/http"

	"go.uber.org/zap"

	apitypes "github.com/openalpha/options-exchange/api/types"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/metrics"
)

// TeamHandler handles team registration.
type TeamHandler struct {
	registry *teams.Registry
	logger   *zap.Logger
}

// NewTeamHandler creates a new team handler
func NewTeamHandler(registry *teams.Registry, logger *zap.Logger) *TeamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamHandler{registry: registry, logger: logger.Named("teams")}
}

// HandleTeams handles /game/teams (POST for register)
func (h *TeamHandler) HandleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.registerTeam(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (h *TeamHandler) registerTeam(w http.ResponseWriter, r *http.Request) {
	var req apitypes.RegisterTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	role, err := teams.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
		return
	}

	team, err := h.registry.Register(req.TeamName, role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_team", err.Error())
		return
	}

	h.logger.Info("team registered",
		zap.String("team_id", team.TeamID),
		zap.String("name", team.Name),
		zap.String("role", string(team.Role)),
	)
	metrics.GetCollector().TeamsRegistered.Set(float64(h.registry.Count()))

	writeJSON(w, http.StatusOK, apitypes.RegisterTeamResponse{
		TeamID: team.TeamID,
		APIKey: team.APIKey,
	})
}
