package types

import (
	"fmt"
	"time"
)

// Side represents order side
type Side int

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide parses "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideUnspecified, fmt.Errorf("invalid side %q", s)
	}
}

// OrderType represents order type
type OrderType int

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeQuote
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	case OrderTypeQuote:
		return "quote"
	default:
		return "unspecified"
	}
}

// OrderStatus represents order status
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusNew
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "new"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// Liquidity marks which side of a trade added liquidity.
type Liquidity int

const (
	LiquidityMaker Liquidity = iota
	LiquidityTaker
)

func (l Liquidity) String() string {
	if l == LiquidityMaker {
		return "maker"
	}
	return "taker"
}

// Order is a resting or incoming order. The order book exclusively owns
// live orders; everything outside the matcher sees copies or IDs.
type Order struct {
	OrderID       uint64
	ClientOrderID string
	TeamID        string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Price         Price // ignored for market orders
	Quantity      int64
	FilledQty     int64
	Status        OrderStatus
	SubmittedAt   Timestamp
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder creates a new order in status new.
func NewOrder(orderID uint64, teamID, symbol string, side Side, orderType OrderType, price Price, quantity int64) *Order {
	now := time.Now()
	return &Order{
		OrderID:   orderID,
		TeamID:    teamID,
		Symbol:    symbol,
		Side:      side,
		OrderType: orderType,
		Price:     price,
		Quantity:  quantity,
		Status:    OrderStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RemainingQty returns the remaining unfilled quantity.
func (o *Order) RemainingQty() int64 {
	return o.Quantity - o.FilledQty
}

// IsFilled returns true if the order is completely filled.
func (o *Order) IsFilled() bool {
	return o.FilledQty >= o.Quantity
}

// IsActive returns true if the order can still be matched.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// Fill fills the order with the given quantity.
func (o *Order) Fill(qty int64) error {
	if qty > o.RemainingQty() {
		return fmt.Errorf("fill quantity %d exceeds remaining %d", qty, o.RemainingQty())
	}
	o.FilledQty += qty
	o.UpdatedAt = time.Now()
	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else if o.FilledQty > 0 {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel cancels the order.
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now()
}

// Trade is an immutable record of a match. Orders are referenced by ID,
// never by pointer.
type Trade struct {
	TradeID       uint64
	Symbol        string
	BuyerOrderID  uint64
	SellerOrderID uint64
	BuyerTeamID   string
	SellerTeamID  string
	Price         Price
	Quantity      int64
	AggressorSide Side
	Timestamp     time.Time
}

// NewTrade builds a trade from the taker and maker orders.
func NewTrade(tradeID uint64, taker, maker *Order, price Price, qty int64) *Trade {
	t := &Trade{
		TradeID:       tradeID,
		Symbol:        taker.Symbol,
		Price:         price,
		Quantity:      qty,
		AggressorSide: taker.Side,
		Timestamp:     time.Now(),
	}
	if taker.Side == SideBuy {
		t.BuyerOrderID = taker.OrderID
		t.BuyerTeamID = taker.TeamID
		t.SellerOrderID = maker.OrderID
		t.SellerTeamID = maker.TeamID
	} else {
		t.BuyerOrderID = maker.OrderID
		t.BuyerTeamID = maker.TeamID
		t.SellerOrderID = taker.OrderID
		t.SellerTeamID = taker.TeamID
	}
	return t
}

// MakerOrderID returns the order ID of the resting side.
func (t *Trade) MakerOrderID() uint64 {
	if t.AggressorSide == SideBuy {
		return t.SellerOrderID
	}
	return t.BuyerOrderID
}

// TakerOrderID returns the order ID of the aggressor side.
func (t *Trade) TakerOrderID() uint64 {
	if t.AggressorSide == SideBuy {
		return t.BuyerOrderID
	}
	return t.SellerOrderID
}

// Fill is the per-order view of a trade, echoed in order responses.
type Fill struct {
	TradeID      uint64 `json:"trade_id"`
	Price        Price  `json:"price"`
	Quantity     int64  `json:"quantity"`
	Liquidity    string `json:"liquidity"`
	Counterparty string `json:"counterparty"`
}
