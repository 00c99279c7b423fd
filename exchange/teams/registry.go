// Package teams holds the registry of authenticated trading teams,
// their roles and fee schedules.
package teams

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openalpha/options-exchange/exchange/types"
)

// Role classifies a team and selects its fee schedule and constraints.
type Role string

const (
	RoleMarketMaker   Role = "market_maker"
	RoleHedgeFund     Role = "hedge_fund"
	RoleArbitrageDesk Role = "arbitrage_desk"
	RoleRetail        Role = "retail"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMarketMaker, RoleHedgeFund, RoleArbitrageDesk, RoleRetail:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// FeeSchedule is the per-contract maker rebate and taker fee in ticks.
// Rebates are positive credits, taker fees negative charges.
type FeeSchedule struct {
	MakerRebate types.Price
	TakerFee    types.Price
}

// DefaultFeeSchedules returns the standard role fee table.
func DefaultFeeSchedules() map[Role]FeeSchedule {
	return map[Role]FeeSchedule{
		RoleMarketMaker:   {MakerRebate: 2, TakerFee: -1},
		RoleHedgeFund:     {MakerRebate: 1, TakerFee: -2},
		RoleArbitrageDesk: {MakerRebate: 1, TakerFee: -2},
		RoleRetail:        {MakerRebate: -1, TakerFee: -3},
	}
}

// Team is a registered trading bot.
type Team struct {
	TeamID string
	Name   string
	Role   Role
	APIKey string
}

// Registry stores teams and resolves API keys. Read-mostly; a single
// RWMutex is enough for the contention profile.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Team
	byAPIKey map[string]*Team
	fees     map[Role]FeeSchedule
}

// NewRegistry creates an empty registry with the given fee table. A nil
// table falls back to the defaults.
func NewRegistry(fees map[Role]FeeSchedule) *Registry {
	if fees == nil {
		fees = DefaultFeeSchedules()
	}
	return &Registry{
		byID:     make(map[string]*Team),
		byAPIKey: make(map[string]*Team),
		fees:     fees,
	}
}

// Register creates a team with a fresh ID and API key.
func (r *Registry) Register(name string, role Role) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	team := &Team{
		TeamID: uuid.NewString(),
		Name:   name,
		Role:   role,
		APIKey: uuid.NewString(),
	}
	r.mu.Lock()
	r.byID[team.TeamID] = team
	r.byAPIKey[team.APIKey] = team
	r.mu.Unlock()
	return team, nil
}

// Authenticate resolves an API key to a team.
func (r *Registry) Authenticate(apiKey string) (*Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byAPIKey[apiKey]
	return team, ok
}

// Get looks up a team by ID.
func (r *Registry) Get(teamID string) (*Team, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byID[teamID]
	return team, ok
}

// Fees returns the fee schedule for a team's role.
func (r *Registry) Fees(teamID string) FeeSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byID[teamID]
	if !ok {
		return FeeSchedule{}
	}
	return r.fees[team.Role]
}

// RoleOf returns the role for a team ID.
func (r *Registry) RoleOf(teamID string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.byID[teamID]
	if !ok {
		return "", false
	}
	return team.Role, true
}

// Count returns the number of registered teams.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
