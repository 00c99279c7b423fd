package publisher

import (
	"testing"

	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/exchange/types"
)

func newTestPublisher(t *testing.T) (*Publisher, *teams.Team, *teams.Team) {
	t.Helper()
	reg := teams.NewRegistry(nil)
	mm, err := reg.Register("mm", teams.RoleMarketMaker)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := reg.Register("hf", teams.RoleHedgeFund)
	if err != nil {
		t.Fatal(err)
	}
	return New(reg, nil), mm, hf
}

func exec(t *testing.T, taker, maker *types.Order, price string, qty int64) *engine.TradeExec {
	t.Helper()
	p, err := types.ParsePrice(price)
	if err != nil {
		t.Fatal(err)
	}
	tr := types.NewTrade(1, taker, maker, p, qty)
	return &engine.TradeExec{Trade: tr, Taker: *taker, Maker: *maker}
}

func TestExecutionReportFees(t *testing.T) {
	p, mm, hf := newTestPublisher(t)

	// Market maker rests a bid, hedge fund crosses it for 5 at 5.25.
	maker := types.NewOrder(1, mm.TeamID, "TEST", types.SideBuy, types.OrderTypeLimit, 525, 5)
	taker := types.NewOrder(2, hf.TeamID, "TEST", types.SideSell, types.OrderTypeLimit, 520, 5)
	out := p.Process(exec(t, taker, maker, "5.25", 5))

	takerRep, makerRep := out.Reports[0], out.Reports[1]
	if takerRep.TeamID != hf.TeamID || takerRep.Liquidity != "taker" {
		t.Errorf("taker report = %s/%s, want hedge fund taker", takerRep.TeamID, takerRep.Liquidity)
	}
	if makerRep.TeamID != mm.TeamID || makerRep.Liquidity != "maker" {
		t.Errorf("maker report = %s/%s, want market maker maker", makerRep.TeamID, makerRep.Liquidity)
	}

	// Hedge fund taker pays 0.02/contract: -0.10 on 5. Market maker
	// earns the 0.02 rebate: +0.10.
	if takerRep.Fee.String() != "-0.10" {
		t.Errorf("taker fee = %s, want -0.10", takerRep.Fee)
	}
	if makerRep.Fee.String() != "0.10" {
		t.Errorf("maker rebate = %s, want 0.10", makerRep.Fee)
	}

	if takerRep.Counterparty != mm.TeamID || makerRep.Counterparty != hf.TeamID {
		t.Errorf("counterparties crossed wrong: %s / %s", takerRep.Counterparty, makerRep.Counterparty)
	}
	if takerRep.Price != 525 || takerRep.Quantity != 5 {
		t.Errorf("report price/qty = %s/%d, want 5.25/5", takerRep.Price, takerRep.Quantity)
	}
}

func TestRetailFees(t *testing.T) {
	reg := teams.NewRegistry(nil)
	retail, _ := reg.Register("retail", teams.RoleRetail)
	p := New(reg, nil)

	// Retail pays on both sides: -0.01/contract as maker, -0.03 as taker.
	if fee := p.Fee(retail.TeamID, types.LiquidityMaker, 10); fee.String() != "-0.10" {
		t.Errorf("retail maker fee = %s, want -0.10", fee)
	}
	if fee := p.Fee(retail.TeamID, types.LiquidityTaker, 10); fee.String() != "-0.30" {
		t.Errorf("retail taker fee = %s, want -0.30", fee)
	}
}

func TestFillsExtractsSubmittingOrder(t *testing.T) {
	p, mm, hf := newTestPublisher(t)

	maker := types.NewOrder(1, mm.TeamID, "TEST", types.SideBuy, types.OrderTypeLimit, 525, 5)
	taker := types.NewOrder(2, hf.TeamID, "TEST", types.SideSell, types.OrderTypeLimit, 520, 5)
	outputs := []*Output{p.Process(exec(t, taker, maker, "5.25", 5))}

	fills := Fills(outputs, taker.OrderID)
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	if fills[0].Price != 525 || fills[0].Quantity != 5 || fills[0].Liquidity != "taker" {
		t.Errorf("fill = %+v, want 5.25 x 5 taker", fills[0])
	}
	if fills[0].Counterparty != mm.TeamID {
		t.Errorf("counterparty = %s, want maker team", fills[0].Counterparty)
	}

	if got := Fills(outputs, 999); len(got) != 0 {
		t.Errorf("unrelated order should have no fills, got %d", len(got))
	}
}
