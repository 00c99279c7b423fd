package engine

import (
	"testing"

	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/types"
)

type matcherFixture struct {
	matcher *Matcher
	state   phase.State
	seq     uint64
}

func continuousState() phase.State {
	return phase.State{
		Name:           phase.PhaseContinuous,
		SubmitAllowed:  true,
		CancelAllowed:  true,
		MatchEnabled:   true,
		ExecutionStyle: phase.ExecutionContinuous,
	}
}

func preOpenState() phase.State {
	return phase.State{
		Name:           phase.PhasePreOpen,
		SubmitAllowed:  true,
		CancelAllowed:  true,
		ExecutionStyle: phase.ExecutionNone,
	}
}

func auctionState() phase.State {
	return phase.State{
		Name:           phase.PhaseOpeningAuction,
		SubmitAllowed:  true,
		MatchEnabled:   false,
		ExecutionStyle: phase.ExecutionBatch,
	}
}

func newMatcherFixture(t *testing.T) *matcherFixture {
	t.Helper()
	set, err := types.NewInstrumentSet([]*types.Instrument{
		{Symbol: "TEST", OptionType: types.OptionTypeUnderlying},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &matcherFixture{state: continuousState()}
	f.matcher = New(set, func() phase.State { return f.state }, nil)
	return f
}

func (f *matcherFixture) order(teamID string, side types.Side, price string, qty int64) *types.Order {
	f.seq++
	p, err := types.ParsePrice(price)
	if err != nil {
		panic(err)
	}
	o := types.NewOrder(f.seq, teamID, "TEST", side, types.OrderTypeLimit, p, qty)
	o.SubmittedAt = types.Now()
	return o
}

func (f *matcherFixture) market(teamID string, side types.Side, qty int64) *types.Order {
	f.seq++
	o := types.NewOrder(f.seq, teamID, "TEST", side, types.OrderTypeMarket, 0, qty)
	o.SubmittedAt = types.Now()
	return o
}

func TestContinuousMatching(t *testing.T) {
	f := newMatcherFixture(t)

	f.matcher.Submit(f.order("t1", types.SideBuy, "5.25", 10))
	res := f.matcher.Submit(f.order("t2", types.SideSell, "5.20", 4))

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	e := res.Trades[0]
	if e.Trade.Price.String() != "5.25" || e.Trade.Quantity != 4 {
		t.Errorf("trade = %s x %d, want 5.25 x 4", e.Trade.Price, e.Trade.Quantity)
	}
	if e.Taker.TeamID != "t2" || e.Maker.TeamID != "t1" {
		t.Errorf("taker/maker = %s/%s, want t2/t1", e.Taker.TeamID, e.Maker.TeamID)
	}
	if res.Order.Status != types.OrderStatusFilled {
		t.Errorf("incoming status = %v, want filled", res.Order.Status)
	}
}

func TestMidPublishedAfterMutation(t *testing.T) {
	f := newMatcherFixture(t)

	if _, ok := f.matcher.Mid("TEST"); ok {
		t.Error("empty book should have no mid")
	}
	f.matcher.Submit(f.order("t1", types.SideBuy, "5.20", 10))
	f.matcher.Submit(f.order("t2", types.SideSell, "5.30", 10))

	mid, ok := f.matcher.Mid("TEST")
	if !ok || mid.String() != "5.25" {
		t.Errorf("mid = %v ok=%v, want 5.25", mid, ok)
	}

	d := f.matcher.Depth("TEST", 5)
	if len(d.Bids) != 1 || len(d.Asks) != 1 {
		t.Errorf("depth levels = %d/%d, want 1/1", len(d.Bids), len(d.Asks))
	}
}

func TestHeldOrdersReleaseInArrivalOrder(t *testing.T) {
	f := newMatcherFixture(t)
	f.state = preOpenState()

	// Both buys are held, not rested. A crossing sell is held too.
	first := f.order("t1", types.SideBuy, "5.25", 5)
	second := f.order("t2", types.SideBuy, "5.25", 5)
	sell := f.order("t3", types.SideSell, "5.25", 5)
	for _, o := range []*types.Order{first, second, sell} {
		res := f.matcher.Submit(o)
		if len(res.Trades) != 0 {
			t.Fatalf("held order must not trade, got %d trades", len(res.Trades))
		}
	}
	if bids, asks := f.matcher.Book("TEST").Levels(); bids != 0 || asks != 0 {
		t.Fatalf("held orders must not rest: levels = %d/%d", bids, asks)
	}

	f.state = continuousState()
	results := f.matcher.OnPhaseChange(preOpenState(), f.state)

	// Release replays arrival order, so the sell matches the first buy.
	var trades []*TradeExec
	for _, r := range results {
		trades = append(trades, r.Trades...)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade on release, got %d", len(trades))
	}
	if trades[0].Maker.OrderID != first.OrderID {
		t.Errorf("sell matched order %d, want the earlier buy %d", trades[0].Maker.OrderID, first.OrderID)
	}
	if second.Status != types.OrderStatusNew {
		t.Errorf("second buy should rest unfilled, got %v", second.Status)
	}
}

func TestCancelledHeldOrderNotReleased(t *testing.T) {
	f := newMatcherFixture(t)
	f.state = preOpenState()

	o := f.order("t1", types.SideBuy, "5.25", 5)
	f.matcher.Submit(o)

	out := f.matcher.Cancel(o.OrderID, "t1")
	if out.Status != CancelOK {
		t.Fatalf("cancel status = %v, want ok", out.Status)
	}

	f.state = continuousState()
	f.matcher.OnPhaseChange(preOpenState(), f.state)
	if bids, _ := f.matcher.Book("TEST").Levels(); bids != 0 {
		t.Error("cancelled held order must not be released into the book")
	}
}

func TestOpeningAuctionOnTransition(t *testing.T) {
	f := newMatcherFixture(t)
	f.state = auctionState()

	// Batch phase rests without matching even though the book crosses.
	f.matcher.Submit(f.order("t1", types.SideBuy, "5.30", 10))
	f.matcher.Submit(f.order("t2", types.SideSell, "5.20", 10))
	if !f.matcher.Book("TEST").Crossed() {
		t.Fatal("batch book should be crossed before the auction")
	}

	f.state = continuousState()
	results := f.matcher.OnPhaseChange(auctionState(), f.state)

	var trades []*TradeExec
	for _, r := range results {
		trades = append(trades, r.Trades...)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 auction trade, got %d", len(trades))
	}
	if trades[0].Trade.Price.String() != "5.25" {
		t.Errorf("auction price = %s, want midpoint 5.25", trades[0].Trade.Price)
	}
	if f.matcher.Book("TEST").Crossed() {
		t.Error("book must uncross after the auction")
	}
}

func TestMarketOrderDuringBatchPhaseNeverRests(t *testing.T) {
	f := newMatcherFixture(t)
	f.state = auctionState()

	// The ask rests for the auction; the market buy has no price to rest
	// at and must wait in the holding buffer instead of sitting on the
	// bid side at zero.
	f.matcher.Submit(f.order("t1", types.SideSell, "5.30", 10))
	mkt := f.market("t2", types.SideBuy, 4)
	res := f.matcher.Submit(mkt)
	if len(res.Trades) != 0 {
		t.Fatalf("batch-phase market order must not trade, got %d trades", len(res.Trades))
	}
	if bids, _ := f.matcher.Book("TEST").Levels(); bids != 0 {
		t.Fatalf("market order must never rest: bid levels = %d", bids)
	}

	f.state = continuousState()
	results := f.matcher.OnPhaseChange(auctionState(), f.state)

	var trades []*TradeExec
	for _, r := range results {
		trades = append(trades, r.Trades...)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade from the released market order, got %d", len(trades))
	}
	if trades[0].Trade.Price.String() != "5.30" {
		t.Errorf("trade price = %s, want the resting ask 5.30", trades[0].Trade.Price)
	}
	if mkt.Status != types.OrderStatusFilled {
		t.Errorf("market order status = %v, want filled", mkt.Status)
	}
}

func TestReleasedMarketOrderCancelsWithoutLiquidity(t *testing.T) {
	f := newMatcherFixture(t)
	f.state = auctionState()

	mkt := f.market("t1", types.SideSell, 5)
	f.matcher.Submit(mkt)

	f.state = continuousState()
	f.matcher.OnPhaseChange(auctionState(), f.state)

	if mkt.Status != types.OrderStatusCancelled {
		t.Errorf("market order into an empty book = %v, want cancelled", mkt.Status)
	}
	if _, asks := f.matcher.Book("TEST").Levels(); asks != 0 {
		t.Error("market residual must be cancelled, not rested")
	}
}

func TestCancelOutcomes(t *testing.T) {
	f := newMatcherFixture(t)

	o := f.order("t1", types.SideBuy, "5.25", 5)
	f.matcher.Submit(o)

	if out := f.matcher.Cancel(999, "t1"); out.Status != CancelNotFound {
		t.Errorf("unknown order status = %v, want not found", out.Status)
	}
	if out := f.matcher.Cancel(o.OrderID, "intruder"); out.Status != CancelNotOwner {
		t.Errorf("foreign cancel status = %v, want not owner", out.Status)
	}

	out := f.matcher.Cancel(o.OrderID, "t1")
	if out.Status != CancelOK || out.Order.Status != types.OrderStatusCancelled {
		t.Errorf("first cancel = %v/%v, want ok/cancelled", out.Status, out.Order.Status)
	}

	// Cancellation is idempotent at the matcher: the second attempt
	// reports the terminal state instead of failing loudly.
	out = f.matcher.Cancel(o.OrderID, "t1")
	if out.Status != CancelAlreadyTerminal {
		t.Errorf("second cancel status = %v, want already terminal", out.Status)
	}
}

func TestCancelFilledOrder(t *testing.T) {
	f := newMatcherFixture(t)

	o := f.order("t1", types.SideBuy, "5.25", 5)
	f.matcher.Submit(o)
	f.matcher.Submit(f.order("t2", types.SideSell, "5.25", 5))

	out := f.matcher.Cancel(o.OrderID, "t1")
	if out.Status != CancelAlreadyTerminal {
		t.Errorf("cancel of filled order = %v, want already terminal", out.Status)
	}
}

func TestPartialThenCancelRemovesRemainder(t *testing.T) {
	f := newMatcherFixture(t)

	o := f.order("t1", types.SideBuy, "5.25", 10)
	f.matcher.Submit(o)
	f.matcher.Submit(f.order("t2", types.SideSell, "5.25", 4))

	out := f.matcher.Cancel(o.OrderID, "t1")
	if out.Status != CancelOK {
		t.Fatalf("cancel status = %v, want ok", out.Status)
	}
	if out.Order.FilledQty != 4 {
		t.Errorf("cancelled order filled = %d, want 4", out.Order.FilledQty)
	}
	if bids, _ := f.matcher.Book("TEST").Levels(); bids != 0 {
		t.Error("remainder should be gone from the book")
	}
}
