package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apitypes "github.com/openalpha/options-exchange/api/types"
	"github.com/openalpha/options-exchange/api/middleware"
	"github.com/openalpha/options-exchange/exchange/correlator"
	"github.com/openalpha/options-exchange/exchange/pipeline"
	"github.com/openalpha/options-exchange/exchange/types"
	"github.com/openalpha/options-exchange/metrics"
)

// OrderHandler handles order submission and cancellation.
type OrderHandler struct {
	pipeline *pipeline.Pipeline
	logger   *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(p *pipeline.Pipeline, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{pipeline: p, logger: logger.Named("orders")}
}

// HandleOrders handles /exchange/orders (POST for submit)
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.submitOrder(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// HandleOrder handles /exchange/orders/{order_id} (DELETE for cancel)
func (h *OrderHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	const prefix = "/exchange/orders/"
	idText := strings.TrimPrefix(r.URL.Path, prefix)
	if idText == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id", "Order ID is required")
		return
	}
	orderID, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid_order_id", "Order ID must be numeric")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.cancelOrder(w, r, orderID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (h *OrderHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	team, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req apitypes.SubmitOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	order, rejection, errResp := buildOrder(team.TeamID, &req)
	if errResp != nil {
		writeJSON(w, http.StatusBadRequest, errResp)
		return
	}
	if rejection != nil {
		// Off-tick prices are well-formed but refused by the exchange,
		// so they ride a 200 like any other business rejection.
		metrics.GetCollector().RecordRejection(rejection.Code)
		writeJSON(w, http.StatusOK, apitypes.OrderResponse{
			ClientOrderID: req.ClientOrderID,
			Status:        types.OrderStatusRejected.String(),
			Fills:         []types.Fill{},
			RejectCode:    rejection.Code,
			RejectReason:  rejection.Message,
		})
		return
	}

	outcome, err := h.pipeline.Submit(r.Context(), order)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	mc := metrics.GetCollector()
	if outcome.Rejection != nil {
		mc.RecordRejection(outcome.Rejection.Code)
		mc.RecordOrder(order.Symbol, order.Side.String(), order.OrderType.String(), "rejected")
		writeJSON(w, http.StatusOK, apitypes.OrderResponse{
			ClientOrderID: order.ClientOrderID,
			Status:        types.OrderStatusRejected.String(),
			Fills:         []types.Fill{},
			RejectCode:    outcome.Rejection.Code,
			RejectReason:  outcome.Rejection.Message,
		})
		return
	}

	mc.RecordOrder(order.Symbol, order.Side.String(), order.OrderType.String(), outcome.Order.Status.String())
	fills := outcome.Fills
	if fills == nil {
		fills = []types.Fill{}
	}
	writeJSON(w, http.StatusOK, apitypes.OrderResponse{
		OrderID:       outcome.Order.OrderID,
		ClientOrderID: outcome.Order.ClientOrderID,
		Status:        outcome.Order.Status.String(),
		Fills:         fills,
	})
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request, orderID uint64) {
	team, ok := middleware.TeamFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	result, err := h.pipeline.Cancel(r.Context(), orderID, team.TeamID)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	outcome := result.Reason
	if result.Cancelled {
		outcome = "ok"
	}
	metrics.GetCollector().RecordCancel(outcome)

	writeJSON(w, http.StatusOK, apitypes.CancelResponse{
		Cancelled: result.Cancelled,
		Reason:    result.Reason,
	})
}

// writeSubmitError maps pipeline errors onto the transport: overload is
// 503, an expired deadline 504.
func (h *OrderHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrOverloaded), errors.Is(err, pipeline.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, types.CodeOverload, "exchange overloaded, retry later")
	case errors.Is(err, correlator.ErrTimeout):
		metrics.GetCollector().RequestTimeouts.Inc()
		resp := apitypes.ErrorResponse{Error: types.CodeTimeout, Message: "request timed out"}
		var timeout *pipeline.TimeoutError
		if errors.As(err, &timeout) {
			resp.RequestID = timeout.RequestID
		}
		writeJSON(w, http.StatusGatewayTimeout, resp)
	default:
		h.logger.Error("order request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// buildOrder validates the protocol-level shape of a submission. An
// absent price means a market order unless an explicit type says
// otherwise. Malformed bodies come back as a protocol error; an
// off-tick price comes back as a business rejection.
func buildOrder(teamID string, req *apitypes.SubmitOrderRequest) (*types.Order, *types.Rejection, *apitypes.ErrorResponse) {
	if req.Instrument == "" {
		return nil, nil, &apitypes.ErrorResponse{Error: "missing_instrument", Message: "instrument is required"}
	}
	side, err := types.ParseSide(req.Side)
	if err != nil {
		return nil, nil, &apitypes.ErrorResponse{Error: "invalid_side", Message: err.Error()}
	}
	if req.Quantity <= 0 {
		return nil, nil, &apitypes.ErrorResponse{Error: "invalid_quantity", Message: "quantity must be positive"}
	}

	orderType := types.OrderTypeLimit
	if req.Price == "" {
		orderType = types.OrderTypeMarket
	}
	switch req.OrderType {
	case "":
	case "limit":
		orderType = types.OrderTypeLimit
	case "market":
		orderType = types.OrderTypeMarket
	case "quote":
		orderType = types.OrderTypeQuote
	default:
		return nil, nil, &apitypes.ErrorResponse{Error: "invalid_order_type", Message: "order_type must be limit, market or quote"}
	}

	var price types.Price
	if orderType == types.OrderTypeLimit || orderType == types.OrderTypeQuote {
		if req.Price == "" {
			return nil, nil, &apitypes.ErrorResponse{Error: "missing_price", Message: "price is required for limit orders"}
		}
		price, err = types.ParsePrice(string(req.Price))
		if errors.Is(err, types.ErrOffTick) {
			return nil, types.NewRejection(types.CodeInvalidTick, err.Error()), nil
		}
		if err != nil {
			return nil, nil, &apitypes.ErrorResponse{Error: "invalid_price", Message: err.Error()}
		}
	}

	order := types.NewOrder(0, teamID, req.Instrument, side, orderType, price, req.Quantity)
	order.ClientOrderID = req.ClientOrderID
	return order, nil, nil
}
