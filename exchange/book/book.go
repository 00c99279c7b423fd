package book

import (
	"fmt"

	"github.com/google/btree"

	"github.com/openalpha/options-exchange/exchange/types"
)

const btreeDegree = 32

// priceLevelItem wraps a price level for use in btree.
type priceLevelItem struct {
	price types.Price
	level *PriceLevel
}

// Less implements btree.Item, ascending by price.
func (a *priceLevelItem) Less(b btree.Item) bool {
	return a.price < b.(*priceLevelItem).price
}

// side is one side of the book (bids or asks).
type side struct {
	tree *btree.BTree
	desc bool // true for bids: best is the highest price
}

func newSide(desc bool) *side {
	return &side{tree: btree.New(btreeDegree), desc: desc}
}

func (s *side) get(price types.Price) *PriceLevel {
	item := s.tree.Get(&priceLevelItem{price: price})
	if item == nil {
		return nil
	}
	return item.(*priceLevelItem).level
}

func (s *side) getOrCreate(price types.Price) *PriceLevel {
	level := s.get(price)
	if level == nil {
		level = NewPriceLevel(price)
		s.tree.ReplaceOrInsert(&priceLevelItem{price: price, level: level})
	}
	return level
}

func (s *side) remove(price types.Price) {
	s.tree.Delete(&priceLevelItem{price: price})
}

// best returns the top-of-book level: highest bid or lowest ask.
func (s *side) best() *PriceLevel {
	var item btree.Item
	if s.desc {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*priceLevelItem).level
}

// iterate walks levels in priority order (bids descending, asks ascending).
func (s *side) iterate(fn func(*PriceLevel) bool) {
	if s.desc {
		s.tree.Descend(func(item btree.Item) bool {
			return fn(item.(*priceLevelItem).level)
		})
	} else {
		s.tree.Ascend(func(item btree.Item) bool {
			return fn(item.(*priceLevelItem).level)
		})
	}
}

func (s *side) len() int {
	return s.tree.Len()
}

// DepthLevel is one row of a depth snapshot.
type DepthLevel struct {
	Price      types.Price `json:"price"`
	Quantity   int64       `json:"quantity"`
	OrderCount int         `json:"order_count"`
}

// Depth is a snapshot of the top of the book.
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// Book is the price-time priority order book for one instrument. It is
// exclusively owned by the matcher goroutine and therefore unlocked;
// everyone else sees snapshots the matcher publishes.
type Book struct {
	Symbol string
	bids   *side
	asks   *side

	nextTradeID func() uint64
}

// New creates an empty book. nextTradeID supplies globally unique trade
// IDs (shared across instruments).
func New(symbol string, nextTradeID func() uint64) *Book {
	return &Book{
		Symbol:      symbol,
		bids:        newSide(true),
		asks:        newSide(false),
		nextTradeID: nextTradeID,
	}
}

func (b *Book) sideFor(s types.Side) *side {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

// assertTick panics on an off-tick price reaching the book. The
// validator rejects these upstream; hitting this means a stage bug.
func assertTick(order *types.Order) {
	if order.OrderType != types.OrderTypeMarket && order.Price%types.TickSize != 0 {
		panic(fmt.Sprintf("off-tick price %s reached book for order %d", order.Price, order.OrderID))
	}
}

// crosses reports whether the incoming order can trade at levelPrice.
func crosses(order *types.Order, levelPrice types.Price) bool {
	if order.OrderType == types.OrderTypeMarket {
		return true
	}
	if order.Side == types.SideBuy {
		return order.Price >= levelPrice
	}
	return order.Price <= levelPrice
}

// Insert matches the incoming order against the opposite side and rests
// any limit residual. Execution price is always the resting order's
// price. Market residuals are cancelled, never rested.
func (b *Book) Insert(order *types.Order) []*types.Trade {
	assertTick(order)

	trades := b.matchIncoming(order)

	if order.RemainingQty() > 0 {
		if order.OrderType == types.OrderTypeLimit {
			b.sideFor(order.Side).getOrCreate(order.Price).AddOrder(order)
		} else if order.IsActive() {
			order.Cancel()
		}
	}
	return trades
}

// Rest places an order on the book without matching. Used during batch
// phases where the auction uncrosses later.
func (b *Book) Rest(order *types.Order) {
	assertTick(order)
	b.sideFor(order.Side).getOrCreate(order.Price).AddOrder(order)
}

// matchIncoming runs the continuous matching loop against the opposite
// side, filling resting orders in price then time priority.
func (b *Book) matchIncoming(taker *types.Order) []*types.Trade {
	trades := make([]*types.Trade, 0)
	opposite := b.sideFor(taker.Side.Opposite())

	for taker.RemainingQty() > 0 {
		level := opposite.best()
		if level == nil || !crosses(taker, level.Price) {
			break
		}

		for taker.RemainingQty() > 0 && !level.IsEmpty() {
			maker := level.First()
			qty := taker.RemainingQty()
			if maker.RemainingQty() < qty {
				qty = maker.RemainingQty()
			}

			trade := types.NewTrade(b.nextTradeID(), taker, maker, level.Price, qty)
			trades = append(trades, trade)

			// Fill cannot fail here: qty is min of both remainders.
			_ = taker.Fill(qty)
			_ = maker.Fill(qty)
			level.Reduce(qty)

			if maker.IsFilled() {
				level.RemoveOrder(maker.OrderID)
			}
		}

		if level.IsEmpty() {
			opposite.remove(level.Price)
		}
	}
	return trades
}

// Remove takes a resting order off the book. Returns false if the order
// is not resting (already filled or never rested).
func (b *Book) Remove(order *types.Order) bool {
	s := b.sideFor(order.Side)
	level := s.get(order.Price)
	if level == nil {
		return false
	}
	removed := level.RemoveOrder(order.OrderID)
	if level.IsEmpty() {
		s.remove(order.Price)
	}
	return removed != nil
}

// BestBid returns the highest bid price, or ok=false on an empty side.
func (b *Book) BestBid() (types.Price, bool) {
	level := b.bids.best()
	if level == nil {
		return 0, false
	}
	return level.Price, true
}

// BestAsk returns the lowest ask price, or ok=false on an empty side.
func (b *Book) BestAsk() (types.Price, bool) {
	level := b.asks.best()
	if level == nil {
		return 0, false
	}
	return level.Price, true
}

// Mid returns the midpoint of the best bid and ask.
func (b *Book) Mid() (types.Price, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Depth returns the top n levels per side with aggregate quantity and
// order count.
func (b *Book) Depth(n int) *Depth {
	d := &Depth{Symbol: b.Symbol, Bids: make([]DepthLevel, 0, n), Asks: make([]DepthLevel, 0, n)}
	count := 0
	b.bids.iterate(func(level *PriceLevel) bool {
		if count >= n {
			return false
		}
		d.Bids = append(d.Bids, DepthLevel{Price: level.Price, Quantity: level.Quantity, OrderCount: len(level.Orders)})
		count++
		return true
	})
	count = 0
	b.asks.iterate(func(level *PriceLevel) bool {
		if count >= n {
			return false
		}
		d.Asks = append(d.Asks, DepthLevel{Price: level.Price, Quantity: level.Quantity, OrderCount: len(level.Orders)})
		count++
		return true
	})
	return d
}

// Crossed reports whether the book is crossed at rest. Always false
// after a continuous match cycle; true during batch phases before the
// auction uncrosses.
func (b *Book) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid >= ask
}

// Levels returns the number of bid and ask price levels.
func (b *Book) Levels() (bidLevels, askLevels int) {
	return b.bids.len(), b.asks.len()
}
