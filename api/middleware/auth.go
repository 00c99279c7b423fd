// Package middleware provides the HTTP middleware chain: bearer-token
// authentication and IP rate limiting.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/openalpha/options-exchange/exchange/teams"
)

type contextKey string

const teamContextKey contextKey = "team"

// Authenticator resolves Authorization bearer tokens to teams.
type Authenticator struct {
	registry *teams.Registry
}

// NewAuthenticator creates an authenticator backed by the registry.
func NewAuthenticator(registry *teams.Registry) *Authenticator {
	return &Authenticator{registry: registry}
}

// Require wraps a handler and rejects requests without a valid API key.
func (a *Authenticator) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			unauthorized(w, "missing bearer token")
			return
		}
		team, ok := a.registry.Authenticate(strings.TrimPrefix(header, prefix))
		if !ok {
			unauthorized(w, "invalid api key")
			return
		}
		ctx := context.WithValue(r.Context(), teamContextKey, team)
		next(w, r.WithContext(ctx))
	}
}

// TeamFromContext returns the authenticated team, if any.
func TeamFromContext(ctx context.Context) (*teams.Team, bool) {
	team, ok := ctx.Value(teamContextKey).(*teams.Team)
	return team, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
