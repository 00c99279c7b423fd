// Package positions tracks per-team net positions. The position tracker
// worker is the single writer; REST handlers and the validator read
// concurrently, so the map is guarded by one mutex.
package positions

import (
	"sync"

	"github.com/openalpha/options-exchange/exchange/types"
)

// Store holds signed net positions keyed by (team, symbol).
type Store struct {
	mu        sync.RWMutex
	positions map[string]map[string]int64 // teamID -> symbol -> net
}

// NewStore creates an empty position store.
func NewStore() *Store {
	return &Store{positions: make(map[string]map[string]int64)}
}

// Apply updates both sides of a trade atomically: buyer gains, seller
// loses the traded quantity. A self-trade nets to zero.
func (s *Store) Apply(trade *types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(trade.BuyerTeamID, trade.Symbol, trade.Quantity)
	s.add(trade.SellerTeamID, trade.Symbol, -trade.Quantity)
}

func (s *Store) add(teamID, symbol string, delta int64) {
	m, ok := s.positions[teamID]
	if !ok {
		m = make(map[string]int64)
		s.positions[teamID] = m
	}
	m[symbol] += delta
	if m[symbol] == 0 {
		delete(m, symbol)
	}
}

// Get returns the net position for a team and symbol.
func (s *Store) Get(teamID, symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[teamID][symbol]
}

// Snapshot copies a team's positions.
func (s *Store) Snapshot(teamID string) map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.positions[teamID]))
	for symbol, qty := range s.positions[teamID] {
		out[symbol] = qty
	}
	return out
}

// GrossTotal returns the sum of absolute positions across all
// instruments for a team. Used by the portfolio_limit constraint.
func (s *Store) GrossTotal(teamID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := int64(0)
	for _, qty := range s.positions[teamID] {
		if qty < 0 {
			qty = -qty
		}
		total += qty
	}
	return total
}

// NetBySymbol sums all teams' positions on one instrument. Zero by
// construction; exposed for invariant checks.
func (s *Store) NetBySymbol(symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := int64(0)
	for _, bySymbol := range s.positions {
		total += bySymbol[symbol]
	}
	return total
}
