package handlers

import (
	"net/http"
	"strconv"
	"strings"

	apitypes "github.com/openalpha/options-exchange/api/types"
	"github.com/openalpha/options-exchange/exchange/engine"
)

const defaultDepthLevels = 10

// BookHandler serves aggregated orderbook depth from the matcher's
// published snapshots.
type BookHandler struct {
	matcher *engine.Matcher
}

// NewBookHandler creates a new orderbook handler
func NewBookHandler(matcher *engine.Matcher) *BookHandler {
	return &BookHandler{matcher: matcher}
}

// HandleOrderbook handles /exchange/orderbook/{symbol} (GET)
func (h *BookHandler) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	const prefix = "/exchange/orderbook/"
	symbol := strings.TrimPrefix(r.URL.Path, prefix)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing_symbol", "Symbol is required")
		return
	}

	levels := defaultDepthLevels
	if text := r.URL.Query().Get("depth"); text != "" {
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_depth", "depth must be a positive integer")
			return
		}
		levels = n
	}

	depth := h.matcher.Depth(symbol, levels)
	resp := apitypes.OrderbookResponse{
		Symbol: depth.Symbol,
		Bids:   make([]apitypes.DepthLevelResponse, 0, len(depth.Bids)),
		Asks:   make([]apitypes.DepthLevelResponse, 0, len(depth.Asks)),
	}
	for _, lvl := range depth.Bids {
		resp.Bids = append(resp.Bids, apitypes.DepthLevelResponse{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	for _, lvl := range depth.Asks {
		resp.Asks = append(resp.Asks, apitypes.DepthLevelResponse{Price: lvl.Price, Quantity: lvl.Quantity})
	}
	writeJSON(w, http.StatusOK, resp)
}
