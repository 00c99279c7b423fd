// Package engine implements the matcher: the single goroutine that owns
// every order book. All book mutation is serialized here, which is what
// makes per-instrument ordering deterministic.
package engine

import (
	"sync"

	"github.com/huandu/skiplist"
	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/exchange/book"
	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/types"
	"github.com/openalpha/options-exchange/metrics"
)

// TradeExec pairs a trade with value snapshots of both orders at the
// moment of the match, for fee assignment and execution reports.
type TradeExec struct {
	Trade *types.Trade
	Taker types.Order
	Maker types.Order
}

// Result is the outcome of one submit processed by the matcher.
type Result struct {
	Order  types.Order
	Trades []*TradeExec
}

// CancelStatus classifies a cancellation outcome.
type CancelStatus int

const (
	CancelOK CancelStatus = iota
	CancelNotFound
	CancelNotOwner
	CancelAlreadyTerminal
)

// CancelOutcome reports a cancellation result with the order snapshot
// when one exists.
type CancelOutcome struct {
	Status CancelStatus
	Order  types.Order
}

// Matcher mutates order books. Exactly one goroutine may call Submit,
// Cancel and OnPhaseChange; Depth and Mid are safe concurrent reads
// served from published snapshots.
type Matcher struct {
	logger  *zap.Logger
	phaseFn func() phase.State

	books  map[string]*book.Book
	orders map[uint64]*types.Order

	tradeSeq uint64

	// Orders parked while match_enabled is false (plus market orders
	// arriving during batch phases, which have no price to rest at),
	// released in arrival order on the transition to continuous.
	held     *skiplist.SkipList // arrival seq -> *types.Order
	heldByID map[uint64]uint64  // orderID -> arrival seq
	heldSeq  uint64

	// Published book state for concurrent readers (validator mid checks,
	// REST depth queries).
	snapMu sync.RWMutex
	mids   map[string]types.Price
	depths map[string]*book.Depth
}

// New creates a matcher with one book per instrument.
func New(instruments *types.InstrumentSet, phaseFn func() phase.State, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Matcher{
		logger:   logger.Named("matcher"),
		phaseFn:  phaseFn,
		books:    make(map[string]*book.Book),
		orders:   make(map[uint64]*types.Order),
		held:     skiplist.New(skiplist.Uint64),
		heldByID: make(map[uint64]uint64),
		mids:     make(map[string]types.Price),
		depths:   make(map[string]*book.Depth),
	}
	for _, symbol := range instruments.Symbols() {
		m.books[symbol] = book.New(symbol, m.nextTradeID)
	}
	return m
}

func (m *Matcher) nextTradeID() uint64 {
	m.tradeSeq++
	return m.tradeSeq
}

// Submit routes an accepted order according to the current phase:
// continuous insert, batch rest, or the holding buffer.
func (m *Matcher) Submit(order *types.Order) *Result {
	m.orders[order.OrderID] = order
	b := m.books[order.Symbol]

	st := m.phaseFn()
	switch {
	case st.MatchEnabled:
		trades := b.Insert(order)
		m.publishSnapshot(b)
		return m.result(order, trades)

	case st.ExecutionStyle == phase.ExecutionBatch && order.OrderType == types.OrderTypeLimit:
		// Auction phase: rest without matching, uncross later. Market
		// orders never rest; they wait in the holding buffer and chase
		// whatever liquidity survives the auction.
		b.Rest(order)
		m.publishSnapshot(b)
		return m.result(order, nil)

	default:
		m.hold(order)
		return m.result(order, nil)
	}
}

func (m *Matcher) hold(order *types.Order) {
	m.heldSeq++
	m.held.Set(m.heldSeq, order)
	m.heldByID[order.OrderID] = m.heldSeq
}

// Cancel removes a resting or held order. Only the originating team may
// cancel.
func (m *Matcher) Cancel(orderID uint64, teamID string) CancelOutcome {
	order, ok := m.orders[orderID]
	if !ok {
		return CancelOutcome{Status: CancelNotFound}
	}
	if order.TeamID != teamID {
		return CancelOutcome{Status: CancelNotOwner}
	}
	if !order.IsActive() {
		return CancelOutcome{Status: CancelAlreadyTerminal, Order: *order}
	}

	if seq, held := m.heldByID[orderID]; held {
		m.held.Remove(seq)
		delete(m.heldByID, orderID)
	} else {
		b := m.books[order.Symbol]
		b.Remove(order)
		m.publishSnapshot(b)
	}
	order.Cancel()
	return CancelOutcome{Status: CancelOK, Order: *order}
}

// OnPhaseChange reacts to a phase transition: fires the opening auction
// when leaving a batch phase and releases held orders once matching is
// enabled. Returned results carry the auction trades and any matches
// produced by released orders.
func (m *Matcher) OnPhaseChange(from, to phase.State) []*Result {
	if !to.MatchEnabled {
		return nil
	}
	results := make([]*Result, 0)

	if from.ExecutionStyle == phase.ExecutionBatch {
		results = append(results, m.runAuction()...)
	}

	for {
		front := m.held.Front()
		if front == nil {
			break
		}
		order := front.Value.(*types.Order)
		m.held.Remove(front.Key())
		delete(m.heldByID, order.OrderID)
		if !order.IsActive() {
			continue
		}
		b := m.books[order.Symbol]
		trades := b.Insert(order)
		m.publishSnapshot(b)
		results = append(results, m.result(order, trades))
	}
	return results
}

// runAuction uncrosses every crossed book at its clearing price.
func (m *Matcher) runAuction() []*Result {
	results := make([]*Result, 0)
	for symbol, b := range m.books {
		price, ok := b.ClearingPrice()
		if !ok {
			continue
		}
		trades := b.Uncross(price)
		if len(trades) == 0 {
			continue
		}
		m.publishSnapshot(b)
		m.logger.Info("opening auction",
			zap.String("symbol", symbol),
			zap.String("clearing_price", price.String()),
			zap.Int("trades", len(trades)),
		)
		// Auction trades have no single incoming order; group them under
		// the aggressor of the first trade for reporting.
		execs := make([]*TradeExec, 0, len(trades))
		for _, t := range trades {
			execs = append(execs, m.exec(t))
		}
		results = append(results, &Result{Trades: execs})
	}
	return results
}

func (m *Matcher) exec(t *types.Trade) *TradeExec {
	e := &TradeExec{Trade: t}
	if taker, ok := m.orders[t.TakerOrderID()]; ok {
		e.Taker = *taker
	}
	if maker, ok := m.orders[t.MakerOrderID()]; ok {
		e.Maker = *maker
	}
	return e
}

func (m *Matcher) result(order *types.Order, trades []*types.Trade) *Result {
	r := &Result{Order: *order, Trades: make([]*TradeExec, 0, len(trades))}
	for _, t := range trades {
		r.Trades = append(r.Trades, m.exec(t))
	}
	return r
}

// publishSnapshot refreshes the mid and depth cells for one book.
func (m *Matcher) publishSnapshot(b *book.Book) {
	depth := b.Depth(20)
	mid, ok := b.Mid()

	m.snapMu.Lock()
	m.depths[b.Symbol] = depth
	if ok {
		m.mids[b.Symbol] = mid
	} else {
		delete(m.mids, b.Symbol)
	}
	m.snapMu.Unlock()

	mc := metrics.GetCollector()
	mc.OrderbookDepth.WithLabelValues(b.Symbol, "bid").Set(float64(len(depth.Bids)))
	mc.OrderbookDepth.WithLabelValues(b.Symbol, "ask").Set(float64(len(depth.Asks)))
}

// Mid returns the last published mid price for a symbol.
func (m *Matcher) Mid(symbol string) (types.Price, bool) {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	mid, ok := m.mids[symbol]
	return mid, ok
}

// Depth returns the last published depth snapshot for a symbol, capped
// at n levels.
func (m *Matcher) Depth(symbol string, n int) *book.Depth {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	d, ok := m.depths[symbol]
	if !ok {
		return &book.Depth{Symbol: symbol, Bids: []book.DepthLevel{}, Asks: []book.DepthLevel{}}
	}
	out := &book.Depth{Symbol: symbol}
	for i, lvl := range d.Bids {
		if i >= n {
			break
		}
		out.Bids = append(out.Bids, lvl)
	}
	for i, lvl := range d.Asks {
		if i >= n {
			break
		}
		out.Asks = append(out.Asks, lvl)
	}
	return out
}

// Book exposes a book for invariant checks in tests.
func (m *Matcher) Book(symbol string) *book.Book {
	return m.books[symbol]
}
