package book

import (
	"github.com/openalpha/options-exchange/exchange/types"
)

// PriceLevel holds the FIFO queue of resting orders at one price.
// Orders within a level are kept in submitted_at order; the earliest
// order is filled to exhaustion before the next receives any fill.
type PriceLevel struct {
	Price    types.Price
	Quantity int64
	Orders   []*types.Order
}

// NewPriceLevel creates an empty price level.
func NewPriceLevel(price types.Price) *PriceLevel {
	return &PriceLevel{Price: price, Orders: make([]*types.Order, 0, 4)}
}

// AddOrder appends an order, keeping the queue in time-priority order.
// Orders arrive through the single matcher goroutine in submitted_at
// order, so insertion is normally a plain append; the walk handles an
// auction release re-inserting out of arrival order.
func (pl *PriceLevel) AddOrder(order *types.Order) {
	i := len(pl.Orders)
	for i > 0 && order.SubmittedAt.Before(pl.Orders[i-1].SubmittedAt) {
		i--
	}
	pl.Orders = append(pl.Orders, nil)
	copy(pl.Orders[i+1:], pl.Orders[i:])
	pl.Orders[i] = order
	pl.Quantity += order.RemainingQty()
}

// RemoveOrder removes an order by ID and returns it, or nil.
func (pl *PriceLevel) RemoveOrder(orderID uint64) *types.Order {
	for i, o := range pl.Orders {
		if o.OrderID == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.Quantity -= o.RemainingQty()
			return o
		}
	}
	return nil
}

// Reduce lowers the level's aggregate after a partial fill.
func (pl *PriceLevel) Reduce(qty int64) {
	pl.Quantity -= qty
}

// IsEmpty returns true if no orders rest at this level.
func (pl *PriceLevel) IsEmpty() bool {
	return len(pl.Orders) == 0
}

// First returns the oldest resting order at this level.
func (pl *PriceLevel) First() *types.Order {
	if len(pl.Orders) == 0 {
		return nil
	}
	return pl.Orders[0]
}
