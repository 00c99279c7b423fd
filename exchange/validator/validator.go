package validator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/exchange/types"
)

// Validator gates and validates incoming orders: phase gate first, then
// the team's role constraint set in declared order.
type Validator struct {
	constraints map[teams.Role][]*Constraint
	ctx         *Context
	registry    *teams.Registry
	phaseFn     func() phase.State
	logger      *zap.Logger
}

// New builds a validator. phaseFn reads the phase manager's cell.
func New(constraints map[teams.Role][]*Constraint, ctx *Context, registry *teams.Registry, phaseFn func() phase.State, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		constraints: constraints,
		ctx:         ctx,
		registry:    registry,
		phaseFn:     phaseFn,
		logger:      logger.Named("validator"),
	}
}

// ValidateSubmit checks an order submission. On success the order is
// stamped with its submitted_at time-priority key and a nil rejection is
// returned.
func (v *Validator) ValidateSubmit(order *types.Order) *types.Rejection {
	st := v.phaseFn()
	if !st.SubmitAllowed {
		return types.NewRejection(types.CodeMarketClosed, fmt.Sprintf("market is %s", st.Name))
	}

	if _, ok := v.ctx.Instruments.Get(order.Symbol); !ok {
		return types.NewRejection(types.CodeInvalidInstrument, fmt.Sprintf("unknown instrument %s", order.Symbol))
	}
	if order.OrderType == types.OrderTypeQuote {
		return types.NewRejection(types.CodeUnsupportedType, "quote orders are not supported")
	}
	if order.OrderType == types.OrderTypeLimit && order.Price%types.TickSize != 0 {
		return types.NewRejection(types.CodeInvalidTick, fmt.Sprintf("price %s is not a multiple of $0.01", order.Price))
	}

	role, ok := v.registry.RoleOf(order.TeamID)
	if !ok {
		return types.NewRejection(types.CodeUnknownTeam, "unknown team")
	}
	for _, c := range v.constraints[role] {
		if rej := c.Check(order, v.ctx); rej != nil {
			v.logger.Debug("order rejected",
				zap.Uint64("order_id", order.OrderID),
				zap.String("team_id", order.TeamID),
				zap.String("code", rej.Code),
			)
			return rej
		}
	}

	order.SubmittedAt = types.Now()
	return nil
}

// ValidateCancel checks a cancellation against the phase gate.
func (v *Validator) ValidateCancel() *types.Rejection {
	st := v.phaseFn()
	if !st.CancelAllowed {
		return types.NewRejection(types.CodeCancelNotAllowed, fmt.Sprintf("cancellation not allowed while market is %s", st.Name))
	}
	return nil
}
