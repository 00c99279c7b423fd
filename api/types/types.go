// Package types defines the REST request and response bodies.
package types

import (
	"encoding/json"

	extypes "github.com/openalpha/options-exchange/exchange/types"
)

// PriceText carries a submitted price as raw text, accepting both JSON
// forms ("5.25" and 5.25). Parsing is deferred to the handler so an
// off-tick value becomes a business rejection instead of a decode error.
type PriceText string

// UnmarshalJSON accepts a JSON string or number.
func (p *PriceText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PriceText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = PriceText(n.String())
	return nil
}

// RegisterTeamRequest is the body of POST /game/teams.
type RegisterTeamRequest struct {
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

// RegisterTeamResponse returns the credentials for a new team.
type RegisterTeamResponse struct {
	TeamID string `json:"team_id"`
	APIKey string `json:"api_key"`
}

// SubmitOrderRequest is the body of POST /exchange/orders. Price is
// omitted for market orders.
type SubmitOrderRequest struct {
	Instrument    string    `json:"instrument"`
	Side          string    `json:"side"`
	OrderType     string    `json:"order_type"`
	Quantity      int64     `json:"quantity"`
	Price         PriceText `json:"price,omitempty"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
}

// OrderResponse is the synchronous result of an order submission.
// Business rejections ride a 200 with RejectCode set.
type OrderResponse struct {
	OrderID       uint64         `json:"order_id,omitempty"`
	ClientOrderID string         `json:"client_order_id,omitempty"`
	Status        string         `json:"status"`
	Fills         []extypes.Fill `json:"fills"`
	RejectCode    string         `json:"reject_code,omitempty"`
	RejectReason  string         `json:"reject_reason,omitempty"`
}

// CancelResponse is the result of DELETE /exchange/orders/{id}.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorResponse is the generic protocol error body. RequestID is set on
// gateway timeouts so the client can reference the abandoned request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// DepthLevelResponse is one aggregated price level.
type DepthLevelResponse struct {
	Price    extypes.Price `json:"price"`
	Quantity int64         `json:"quantity"`
}

// OrderbookResponse is the aggregated depth of one instrument.
type OrderbookResponse struct {
	Symbol string               `json:"symbol"`
	Bids   []DepthLevelResponse `json:"bids"`
	Asks   []DepthLevelResponse `json:"asks"`
}

// HealthResponse reports server status and per-worker liveness.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	Phase     string          `json:"phase"`
	Workers   map[string]bool `json:"workers"`
}
