package book

import (
	"testing"

	"github.com/openalpha/options-exchange/exchange/types"
)

func newTestBook() *Book {
	seq := uint64(0)
	return New("TEST", func() uint64 {
		seq++
		return seq
	})
}

var orderSeq uint64

func limitOrder(teamID string, side types.Side, price string, qty int64) *types.Order {
	orderSeq++
	p, err := types.ParsePrice(price)
	if err != nil {
		panic(err)
	}
	o := types.NewOrder(orderSeq, teamID, "TEST", side, types.OrderTypeLimit, p, qty)
	o.SubmittedAt = types.Now()
	return o
}

func marketOrder(teamID string, side types.Side, qty int64) *types.Order {
	orderSeq++
	o := types.NewOrder(orderSeq, teamID, "TEST", side, types.OrderTypeMarket, 0, qty)
	o.SubmittedAt = types.Now()
	return o
}

func TestInsertRestsWhenNoCross(t *testing.T) {
	b := newTestBook()

	trades := b.Insert(limitOrder("t1", types.SideBuy, "5.20", 10))
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	trades = b.Insert(limitOrder("t2", types.SideSell, "5.30", 10))
	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	if bid.String() != "5.20" || ask.String() != "5.30" {
		t.Errorf("best bid/ask = %s/%s, want 5.20/5.30", bid, ask)
	}
	if b.Crossed() {
		t.Error("book should not be crossed at rest")
	}
}

func TestExecutionAtRestingPrice(t *testing.T) {
	b := newTestBook()

	resting := limitOrder("t1", types.SideBuy, "5.25", 10)
	b.Insert(resting)

	incoming := limitOrder("t2", types.SideSell, "5.20", 5)
	trades := b.Insert(incoming)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price.String() != "5.25" {
		t.Errorf("trade price = %s, want resting price 5.25", trades[0].Price)
	}
	if trades[0].Quantity != 5 {
		t.Errorf("trade quantity = %d, want 5", trades[0].Quantity)
	}
	if trades[0].AggressorSide != types.SideSell {
		t.Errorf("aggressor = %v, want sell", trades[0].AggressorSide)
	}
	if resting.RemainingQty() != 5 {
		t.Errorf("resting remaining = %d, want 5", resting.RemainingQty())
	}
	if resting.Status != types.OrderStatusPartiallyFilled {
		t.Errorf("resting status = %v, want partially_filled", resting.Status)
	}
	if incoming.Status != types.OrderStatusFilled {
		t.Errorf("incoming status = %v, want filled", incoming.Status)
	}
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := newTestBook()

	first := limitOrder("t1", types.SideBuy, "5.25", 5)
	second := limitOrder("t2", types.SideBuy, "5.25", 5)
	b.Insert(first)
	b.Insert(second)

	// Crosses 7: first must fill all 5 before second receives any.
	trades := b.Insert(limitOrder("t3", types.SideSell, "5.25", 7))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].MakerOrderID() != first.OrderID || trades[0].Quantity != 5 {
		t.Errorf("first trade: maker=%d qty=%d, want maker=%d qty=5",
			trades[0].MakerOrderID(), trades[0].Quantity, first.OrderID)
	}
	if trades[1].MakerOrderID() != second.OrderID || trades[1].Quantity != 2 {
		t.Errorf("second trade: maker=%d qty=%d, want maker=%d qty=2",
			trades[1].MakerOrderID(), trades[1].Quantity, second.OrderID)
	}
	if first.Status != types.OrderStatusFilled {
		t.Errorf("first order should be fully filled before second fills")
	}
	if second.RemainingQty() != 3 {
		t.Errorf("second remaining = %d, want 3", second.RemainingQty())
	}
}

func TestPartialFillKeepsTimePriority(t *testing.T) {
	b := newTestBook()

	first := limitOrder("t1", types.SideBuy, "5.25", 10)
	second := limitOrder("t2", types.SideBuy, "5.25", 10)
	b.Insert(first)
	b.Insert(second)

	// Partially fill the front order.
	b.Insert(limitOrder("t3", types.SideSell, "5.25", 4))

	// The next seller must still hit the front order's remainder first.
	trades := b.Insert(limitOrder("t4", types.SideSell, "5.25", 6))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].MakerOrderID() != first.OrderID {
		t.Errorf("partial fill must not lose time priority: maker=%d, want %d",
			trades[0].MakerOrderID(), first.OrderID)
	}
	if first.Status != types.OrderStatusFilled {
		t.Errorf("first order status = %v, want filled", first.Status)
	}
}

func TestPriceImprovementSweepsBestFirst(t *testing.T) {
	b := newTestBook()

	b.Insert(limitOrder("t1", types.SideSell, "5.30", 5))
	best := limitOrder("t2", types.SideSell, "5.25", 5)
	b.Insert(best)

	trades := b.Insert(limitOrder("t3", types.SideBuy, "5.30", 8))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Price.String() != "5.25" || trades[0].MakerOrderID() != best.OrderID {
		t.Errorf("first trade must take the best ask at 5.25")
	}
	if trades[1].Price.String() != "5.30" || trades[1].Quantity != 3 {
		t.Errorf("second trade = %s x %d, want 5.30 x 3", trades[1].Price, trades[1].Quantity)
	}
}

func TestMarketOrderEmptyBook(t *testing.T) {
	b := newTestBook()

	o := marketOrder("t1", types.SideBuy, 10)
	trades := b.Insert(o)

	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	if o.Status != types.OrderStatusCancelled {
		t.Errorf("market order on empty book should cancel, got %v", o.Status)
	}
	if bids, asks := b.Levels(); bids != 0 || asks != 0 {
		t.Errorf("market order must never rest: levels = %d/%d", bids, asks)
	}
}

func TestMarketOrderResidualDiscarded(t *testing.T) {
	b := newTestBook()

	b.Insert(limitOrder("t1", types.SideSell, "5.25", 4))
	o := marketOrder("t2", types.SideBuy, 10)
	trades := b.Insert(o)

	if len(trades) != 1 || trades[0].Quantity != 4 {
		t.Fatalf("expected one fill of 4, got %v", trades)
	}
	if o.Status != types.OrderStatusCancelled {
		t.Errorf("residual should be cancelled, got %v", o.Status)
	}
	if o.FilledQty != 4 {
		t.Errorf("filled = %d, want 4", o.FilledQty)
	}
	if bids, asks := b.Levels(); bids != 0 || asks != 0 {
		t.Errorf("book should be empty, levels = %d/%d", bids, asks)
	}
}

func TestRemoveRestingOrder(t *testing.T) {
	b := newTestBook()

	o := limitOrder("t1", types.SideBuy, "5.25", 10)
	b.Insert(o)
	if !b.Remove(o) {
		t.Fatal("expected Remove to succeed")
	}
	if bids, _ := b.Levels(); bids != 0 {
		t.Errorf("level should be gone after removing its only order")
	}
	if b.Remove(o) {
		t.Error("second Remove should report not resting")
	}
}

func TestRemainingEqualsQuantityMinusFills(t *testing.T) {
	b := newTestBook()

	o := limitOrder("t1", types.SideBuy, "5.25", 10)
	b.Insert(o)
	b.Insert(limitOrder("t2", types.SideSell, "5.25", 3))
	b.Insert(limitOrder("t3", types.SideSell, "5.25", 4))

	if o.RemainingQty() != o.Quantity-o.FilledQty {
		t.Errorf("remaining %d != quantity %d - filled %d", o.RemainingQty(), o.Quantity, o.FilledQty)
	}
	if o.RemainingQty() != 3 {
		t.Errorf("remaining = %d, want 3", o.RemainingQty())
	}
}

func TestDepthAggregation(t *testing.T) {
	b := newTestBook()

	b.Insert(limitOrder("t1", types.SideBuy, "5.25", 10))
	b.Insert(limitOrder("t2", types.SideBuy, "5.25", 5))
	b.Insert(limitOrder("t3", types.SideBuy, "5.20", 7))
	b.Insert(limitOrder("t4", types.SideSell, "5.30", 3))

	d := b.Depth(10)
	if len(d.Bids) != 2 || len(d.Asks) != 1 {
		t.Fatalf("depth levels = %d/%d, want 2/1", len(d.Bids), len(d.Asks))
	}
	if d.Bids[0].Price.String() != "5.25" || d.Bids[0].Quantity != 15 || d.Bids[0].OrderCount != 2 {
		t.Errorf("top bid level = %+v, want 5.25 x 15 (2 orders)", d.Bids[0])
	}
	if d.Bids[1].Price.String() != "5.20" {
		t.Errorf("bids must be sorted best first")
	}
}
