package pipeline

import (
	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/types"
)

// SubmitRequest carries a new order through ingress and validation.
type SubmitRequest struct {
	Order     *types.Order
	RequestID string
}

// CancelRequest asks the matcher to pull an order.
type CancelRequest struct {
	OrderID   uint64
	TeamID    string
	RequestID string
}

// ingressMsg is the tagged union on the ingress queue. Exactly one
// field is set.
type ingressMsg struct {
	submit *SubmitRequest
	cancel *CancelRequest
}

// matchMsg is a validated message on the match queue.
type matchMsg struct {
	submit *SubmitRequest
	cancel *CancelRequest
}

// tradeMsg is the matcher's output on the trade queue. Phase notes ride
// the same queue so the publisher broadcasts them in stream order.
type tradeMsg struct {
	requestID string
	result    *engine.Result

	cancelReq *CancelRequest
	cancel    *engine.CancelOutcome

	phaseTo *phase.State
}

// SubmitOutcome is the terminal result delivered to a blocked
// submission handler.
type SubmitOutcome struct {
	Order     types.Order
	Fills     []types.Fill
	Rejection *types.Rejection
}

// CancelResult is the terminal result delivered to a blocked
// cancellation handler. Reason is set only when Cancelled is false.
type CancelResult struct {
	Cancelled bool
	Reason    string
	Order     types.Order
}

// Cancellation failure reasons.
const (
	ReasonNotFound        = "not_found"
	ReasonNotOwner        = "not_owner"
	ReasonAlreadyTerminal = "already_terminal"
	ReasonNotAllowed      = "cancel_not_allowed"
)

// phaseNote carries a phase transition into the matcher worker.
type phaseNote struct {
	from, to phase.State
}

// fanoutMsg is one entry on the fan-out queue.
type fanoutMsg struct {
	msgType string
	teamID  string // empty broadcasts
	payload any
}

// Fan-out message type names, matching the wire envelope.
const (
	MsgOrderAck         = "order_ack"
	MsgOrderReject      = "order_reject"
	MsgExecutionReport  = "execution_report"
	MsgCancelAck        = "cancel_ack"
	MsgCancelReject     = "cancel_reject"
	MsgPositionSnapshot = "position_snapshot"
	MsgPhaseChange      = "phase_change"
)

// OrderAck is the data payload of an order_ack message.
type OrderAck struct {
	OrderID       uint64 `json:"order_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Status        string `json:"status"`
}

// OrderReject is the data payload of an order_reject message.
type OrderReject struct {
	ClientOrderID string `json:"client_order_id,omitempty"`
	RejectCode    string `json:"reject_code"`
	RejectReason  string `json:"reject_reason"`
}

// CancelAck is the data payload of cancel_ack and cancel_reject
// messages.
type CancelAck struct {
	OrderID uint64 `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

// PositionSnapshot is the data payload of a position_snapshot message.
type PositionSnapshot struct {
	Positions map[string]int64 `json:"positions"`
}

// Sink receives fan-out messages. An empty teamID broadcasts to every
// connected team.
type Sink interface {
	Deliver(msgType, teamID string, payload any)
}

// NopSink discards everything. Used when no hub is attached.
type NopSink struct{}

func (NopSink) Deliver(string, string, any) {}
