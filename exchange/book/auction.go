package book

import (
	"github.com/openalpha/options-exchange/exchange/types"
)

// Opening auction. During batch phases orders rest without matching and
// the book is allowed to cross; at the auction transition a single
// clearing price per instrument is computed and the book uncrossed at
// that price. Unmatched orders stay resting.

// ClearingPrice computes the auction price: the price maximising matched
// volume, ties broken by minimising imbalance, remaining ties by the
// midpoint of the tied range rounded down to the tick. ok is false when
// no volume can match.
func (b *Book) ClearingPrice() (types.Price, bool) {
	candidates := b.candidatePrices()
	if len(candidates) == 0 {
		return 0, false
	}

	bestVolume := int64(0)
	bestImbalance := int64(0)
	var tiedLow, tiedHigh types.Price

	for _, p := range candidates {
		demand := b.demandAt(p)
		supply := b.supplyAt(p)
		matched := demand
		if supply < matched {
			matched = supply
		}
		if matched == 0 {
			continue
		}
		imbalance := demand - supply
		if imbalance < 0 {
			imbalance = -imbalance
		}

		switch {
		case matched > bestVolume,
			matched == bestVolume && imbalance < bestImbalance:
			bestVolume = matched
			bestImbalance = imbalance
			tiedLow, tiedHigh = p, p
		case matched == bestVolume && imbalance == bestImbalance:
			if p < tiedLow {
				tiedLow = p
			}
			if p > tiedHigh {
				tiedHigh = p
			}
		}
	}

	if bestVolume == 0 {
		return 0, false
	}
	mid := (tiedLow + tiedHigh) / 2
	mid -= mid % types.TickSize
	return mid, true
}

// Uncross generates trades at the clearing price until the book no
// longer crosses it. Within the crossing set, earlier orders fill
// first; the later-submitted side of each match is recorded as the
// aggressor.
func (b *Book) Uncross(price types.Price) []*types.Trade {
	trades := make([]*types.Trade, 0)

	for {
		bidLevel := b.bids.best()
		askLevel := b.asks.best()
		if bidLevel == nil || askLevel == nil {
			break
		}
		if bidLevel.Price < price || askLevel.Price > price {
			break
		}

		buy := bidLevel.First()
		sell := askLevel.First()

		qty := buy.RemainingQty()
		if sell.RemainingQty() < qty {
			qty = sell.RemainingQty()
		}

		taker, maker := buy, sell
		if buy.SubmittedAt.Before(sell.SubmittedAt) {
			taker, maker = sell, buy
		}
		trade := types.NewTrade(b.nextTradeID(), taker, maker, price, qty)
		trades = append(trades, trade)

		_ = buy.Fill(qty)
		_ = sell.Fill(qty)
		bidLevel.Reduce(qty)
		askLevel.Reduce(qty)

		if buy.IsFilled() {
			bidLevel.RemoveOrder(buy.OrderID)
		}
		if sell.IsFilled() {
			askLevel.RemoveOrder(sell.OrderID)
		}
		if bidLevel.IsEmpty() {
			b.bids.remove(bidLevel.Price)
		}
		if askLevel.IsEmpty() {
			b.asks.remove(askLevel.Price)
		}
	}
	return trades
}

// candidatePrices collects the distinct limit prices on both sides.
func (b *Book) candidatePrices() []types.Price {
	seen := make(map[types.Price]bool)
	prices := make([]types.Price, 0)
	collect := func(level *PriceLevel) bool {
		if !seen[level.Price] {
			seen[level.Price] = true
			prices = append(prices, level.Price)
		}
		return true
	}
	b.bids.iterate(collect)
	b.asks.iterate(collect)
	return prices
}

// demandAt is the total bid quantity willing to pay p or more.
func (b *Book) demandAt(p types.Price) int64 {
	total := int64(0)
	b.bids.iterate(func(level *PriceLevel) bool {
		if level.Price < p {
			return false
		}
		total += level.Quantity
		return true
	})
	return total
}

// supplyAt is the total ask quantity willing to sell at p or less.
func (b *Book) supplyAt(p types.Price) int64 {
	total := int64(0)
	b.asks.iterate(func(level *PriceLevel) bool {
		if level.Price > p {
			return false
		}
		total += level.Quantity
		return true
	})
	return total
}
