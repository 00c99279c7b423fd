package types

import "errors"

// Sentinel errors for book and cancellation operations.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotOrderOwner = errors.New("order belongs to another team")
	ErrOffTick       = errors.New("price is not a multiple of the $0.01 tick")
)

// Stable rejection codes surfaced to clients. Per-role constraint codes
// come from configuration; these are the built-in ones.
const (
	CodeMarketClosed      = "MARKET_CLOSED"
	CodeInvalidInstrument = "INVALID_INSTRUMENT"
	CodeInvalidTick       = "INVALID_TICK"
	CodeOverload          = "OVERLOAD"
	CodeTimeout           = "TIMEOUT"
	CodeUnsupportedType   = "UNSUPPORTED_ORDER_TYPE"
	CodeCancelNotAllowed  = "CANCEL_NOT_ALLOWED"
	CodeUnknownTeam       = "UNKNOWN_TEAM"
)

// Rejection is a business rejection: the request was well-formed but the
// exchange refused it. Carried as a value through the pipeline and in
// HTTP 200 responses.
type Rejection struct {
	Code    string `json:"reject_code"`
	Message string `json:"reject_reason"`
}

func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

// NewRejection builds a rejection with a stable code.
func NewRejection(code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}
