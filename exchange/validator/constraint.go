// Package validator applies per-role constraint sets to incoming
// orders. Constraints are built once at config load and immutable
// afterwards; they run in declared order and the first failure
// short-circuits.
package validator

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/openalpha/options-exchange/exchange/positions"
	"github.com/openalpha/options-exchange/exchange/types"
)

// Kind tags a constraint variant.
type Kind string

const (
	KindPositionLimit     Kind = "position_limit"
	KindInstrumentAllowed Kind = "instrument_allowed"
	KindOrderRate         Kind = "order_rate"
	KindOrderType         Kind = "order_type"
	KindPriceRange        Kind = "price_range"
	KindPortfolioLimit    Kind = "portfolio_limit"
)

// Context supplies the state a constraint may consult.
type Context struct {
	Positions   *positions.Store
	Instruments *types.InstrumentSet
	// Mid returns the current mid price for a symbol, published by the
	// matcher after every book mutation.
	Mid func(symbol string) (types.Price, bool)
}

// Constraint is one configured predicate. Parameters not used by the
// kind are zero.
type Constraint struct {
	Kind         Kind
	ErrorCode    string
	ErrorMessage string

	// position_limit / portfolio_limit
	Max       int64
	Symmetric bool

	// instrument_allowed
	Whitelist map[string]bool

	// order_rate
	MaxPerSecond int

	// order_type
	AllowedTypes map[types.OrderType]bool

	// price_range
	MaxPctFromMid float64

	// Per-team token buckets for order_rate. Only the validator
	// goroutine touches this map.
	limiters map[string]*rate.Limiter
}

// Check runs the constraint. A nil result means the order passes.
func (c *Constraint) Check(order *types.Order, ctx *Context) *types.Rejection {
	switch c.Kind {
	case KindPositionLimit:
		return c.checkPositionLimit(order, ctx)
	case KindInstrumentAllowed:
		return c.checkInstrumentAllowed(order)
	case KindOrderRate:
		return c.checkOrderRate(order)
	case KindOrderType:
		return c.checkOrderType(order)
	case KindPriceRange:
		return c.checkPriceRange(order, ctx)
	case KindPortfolioLimit:
		return c.checkPortfolioLimit(order, ctx)
	default:
		return types.NewRejection("UNKNOWN_CONSTRAINT", fmt.Sprintf("unknown constraint kind %q", c.Kind))
	}
}

func (c *Constraint) reject() *types.Rejection {
	return types.NewRejection(c.ErrorCode, c.ErrorMessage)
}

// checkPositionLimit bounds the post-trade position assuming the whole
// order fills.
func (c *Constraint) checkPositionLimit(order *types.Order, ctx *Context) *types.Rejection {
	current := ctx.Positions.Get(order.TeamID, order.Symbol)
	projected := current
	if order.Side == types.SideBuy {
		projected += order.Quantity
	} else {
		projected -= order.Quantity
	}
	if c.Symmetric {
		if projected < 0 {
			projected = -projected
		}
	}
	if projected > c.Max {
		return c.reject()
	}
	return nil
}

func (c *Constraint) checkInstrumentAllowed(order *types.Order) *types.Rejection {
	if !c.Whitelist[order.Symbol] {
		return c.reject()
	}
	return nil
}

// checkOrderRate consumes one token from the team's bucket. The bucket
// refills continuously, giving a rolling one-second window.
func (c *Constraint) checkOrderRate(order *types.Order) *types.Rejection {
	if c.limiters == nil {
		c.limiters = make(map[string]*rate.Limiter)
	}
	limiter, ok := c.limiters[order.TeamID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.MaxPerSecond), c.MaxPerSecond)
		c.limiters[order.TeamID] = limiter
	}
	if !limiter.Allow() {
		return c.reject()
	}
	return nil
}

func (c *Constraint) checkOrderType(order *types.Order) *types.Rejection {
	if !c.AllowedTypes[order.OrderType] {
		return c.reject()
	}
	return nil
}

// checkPriceRange bounds a limit price to a percentage band around the
// current mid. Market orders and symbols with no mid pass.
func (c *Constraint) checkPriceRange(order *types.Order, ctx *Context) *types.Rejection {
	if order.OrderType != types.OrderTypeLimit {
		return nil
	}
	mid, ok := ctx.Mid(order.Symbol)
	if !ok || mid == 0 {
		return nil
	}
	diff := order.Price - mid
	if diff < 0 {
		diff = -diff
	}
	if diff.Float64() > mid.Float64()*c.MaxPctFromMid/100 {
		return c.reject()
	}
	return nil
}

// checkPortfolioLimit bounds gross exposure across all instruments
// assuming the whole order fills in the exposure-increasing direction.
func (c *Constraint) checkPortfolioLimit(order *types.Order, ctx *Context) *types.Rejection {
	gross := ctx.Positions.GrossTotal(order.TeamID)
	if gross+order.Quantity > c.Max {
		return c.reject()
	}
	return nil
}
