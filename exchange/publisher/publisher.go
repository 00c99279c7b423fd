// Package publisher turns raw matcher output into settlement events:
// per-side execution reports with fees assigned from the role fee
// schedule.
package publisher

import (
	"time"

	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/exchange/types"
)

// ExecutionReport is one side's view of a trade. Fee is the signed
// total for the fill: rebates positive, charges negative.
type ExecutionReport struct {
	OrderID       uint64      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	TeamID        string      `json:"-"`
	Symbol        string      `json:"symbol"`
	Side          string      `json:"side"`
	Quantity      int64       `json:"quantity"`
	Price         types.Price `json:"price"`
	Liquidity     string      `json:"liquidity"`
	Fee           types.Price `json:"fee"`
	TradeID       uint64      `json:"trade_id"`
	Counterparty  string      `json:"counterparty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Output is everything the downstream stages need for one trade: both
// execution reports and the trade itself for the position tracker.
type Output struct {
	Trade   *types.Trade
	Reports [2]*ExecutionReport // taker first, maker second
}

// Publisher computes fees. Stateless apart from the registry lookup, so
// safe to call from the publisher worker alone.
type Publisher struct {
	registry *teams.Registry
	logger   *zap.Logger
}

// New creates a publisher backed by the team registry's fee table.
func New(registry *teams.Registry, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{registry: registry, logger: logger.Named("publisher")}
}

// Process builds both sides' execution reports for one matched trade.
// The aggressor side pays taker fees; the resting side earns the maker
// rate. Self-trades are processed as if the counterparties were
// distinct.
func (p *Publisher) Process(exec *engine.TradeExec) *Output {
	t := exec.Trade
	out := &Output{Trade: t}
	out.Reports[0] = p.report(t, &exec.Taker, types.LiquidityTaker, exec.Maker.TeamID)
	out.Reports[1] = p.report(t, &exec.Maker, types.LiquidityMaker, exec.Taker.TeamID)

	p.logger.Debug("trade published",
		zap.Uint64("trade_id", t.TradeID),
		zap.String("symbol", t.Symbol),
		zap.String("price", t.Price.String()),
		zap.Int64("quantity", t.Quantity),
	)
	return out
}

func (p *Publisher) report(t *types.Trade, order *types.Order, liq types.Liquidity, counterparty string) *ExecutionReport {
	return &ExecutionReport{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		TeamID:        order.TeamID,
		Symbol:        t.Symbol,
		Side:          order.Side.String(),
		Quantity:      t.Quantity,
		Price:         t.Price,
		Liquidity:     liq.String(),
		Fee:           p.Fee(order.TeamID, liq, t.Quantity),
		TradeID:       t.TradeID,
		Counterparty:  counterparty,
		Timestamp:     t.Timestamp,
	}
}

// Fee returns the signed fee total for a fill: quantity times the
// per-contract rate for the team's role and liquidity flag.
func (p *Publisher) Fee(teamID string, liq types.Liquidity, qty int64) types.Price {
	sched := p.registry.Fees(teamID)
	rate := sched.TakerFee
	if liq == types.LiquidityMaker {
		rate = sched.MakerRebate
	}
	return types.Price(int64(rate) * qty)
}

// Fills converts the taker-side reports of a result into the fill list
// echoed in the synchronous order response.
func Fills(outputs []*Output, orderID uint64) []types.Fill {
	fills := make([]types.Fill, 0, len(outputs))
	for _, out := range outputs {
		for _, r := range out.Reports {
			if r.OrderID != orderID {
				continue
			}
			fills = append(fills, types.Fill{
				TradeID:      r.TradeID,
				Price:        r.Price,
				Quantity:     r.Quantity,
				Liquidity:    r.Liquidity,
				Counterparty: r.Counterparty,
			})
		}
	}
	return fills
}
