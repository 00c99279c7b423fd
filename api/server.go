// Package api serves the REST and WebSocket surface of the exchange.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/api/handlers"
	"github.com/openalpha/options-exchange/api/middleware"
	"github.com/openalpha/options-exchange/api/websocket"
	apitypes "github.com/openalpha/options-exchange/api/types"
	"github.com/openalpha/options-exchange/exchange/engine"
	"github.com/openalpha/options-exchange/exchange/phase"
	"github.com/openalpha/options-exchange/exchange/pipeline"
	"github.com/openalpha/options-exchange/exchange/positions"
	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/metrics"
)

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	config     *Config
	logger     *zap.Logger

	pipeline *pipeline.Pipeline
	registry *teams.Registry
	store    *positions.Store
	matcher  *engine.Matcher
	phases   *phase.Manager
	hub      *websocket.Hub

	// Handlers
	orderHandler    *handlers.OrderHandler
	teamHandler     *handlers.TeamHandler
	positionHandler *handlers.PositionHandler
	bookHandler     *handlers.BookHandler

	// Rate limiter
	rateLimiter *middleware.RateLimiter
	auth        *middleware.Authenticator
}

// Config contains server configuration
type Config struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer wires the HTTP surface onto the exchange core.
func NewServer(config *Config, p *pipeline.Pipeline, registry *teams.Registry, store *positions.Store, matcher *engine.Matcher, phases *phase.Manager, hub *websocket.Hub, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:      config,
		logger:      logger.Named("api"),
		pipeline:    p,
		registry:    registry,
		store:       store,
		matcher:     matcher,
		phases:      phases,
		hub:         hub,
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
		auth:        middleware.NewAuthenticator(registry),
	}

	// Create handlers
	s.orderHandler = handlers.NewOrderHandler(p, logger)
	s.teamHandler = handlers.NewTeamHandler(registry, logger)
	s.positionHandler = handlers.NewPositionHandler(store)
	s.bookHandler = handlers.NewBookHandler(matcher)

	return s
}

// Start starts the API server. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Health check with per-worker liveness
	mux.HandleFunc("/", s.handleHealth)

	// Team registration (unauthenticated; returns the API key)
	mux.HandleFunc("/game/teams", s.teamHandler.HandleTeams)

	// Order endpoints
	mux.HandleFunc("/exchange/orders", s.auth.Require(s.orderHandler.HandleOrders))
	mux.HandleFunc("/exchange/orders/", s.auth.Require(s.orderHandler.HandleOrder))

	// Orderbook depth (read-only)
	mux.HandleFunc("/exchange/orderbook/", s.bookHandler.HandleOrderbook)

	// Position endpoint
	mux.HandleFunc("/positions", s.auth.Require(s.positionHandler.HandlePositions))

	// Prometheus metrics
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Apply middleware chain: CORS -> RateLimit -> Metrics -> Handler
	var handler http.Handler = instrumentMiddleware(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	handler = corsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	// Start WebSocket hub
	go s.hub.Run()

	s.logger.Info("api server starting", zap.String("addr", s.config.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports server status, the current phase and per-worker
// liveness. Any dead worker flips the status to thread_down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	workers := s.pipeline.Liveness()
	status := "healthy"
	for _, up := range workers {
		if !up {
			status = "thread_down"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(apitypes.HealthResponse{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Phase:     string(s.phases.Current().Name),
		Workers:   workers,
	})
}

// corsMiddleware adds permissive CORS headers for trading bots running
// in browsers or notebooks.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrumentMiddleware records request counts and latency.
func instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.GetCollector().RecordAPIRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status), timer.ElapsedMs())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// routeLabel collapses parameterized paths so metric cardinality stays
// bounded.
func routeLabel(path string) string {
	switch {
	case path == "/", path == "/game/teams", path == "/positions", path == "/metrics", path == "/ws", path == "/exchange/orders":
		return path
	case len(path) > len("/exchange/orders/") && path[:len("/exchange/orders/")] == "/exchange/orders/":
		return "/exchange/orders/{id}"
	case len(path) > len("/exchange/orderbook/") && path[:len("/exchange/orderbook/")] == "/exchange/orderbook/":
		return "/exchange/orderbook/{symbol}"
	default:
		return "other"
	}
}
