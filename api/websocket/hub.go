// Package websocket fans exchange events out to connected teams. Each
// team holds at most one socket; a new connection evicts the old one.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openalpha/options-exchange/exchange/teams"
	"github.com/openalpha/options-exchange/metrics"
)

// Envelope is the wire frame for every outbound message. Seq is a
// per-connection monotonic counter.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
	Data      any    `json:"data,omitempty"`
}

// Hub maintains the team -> socket map and is the single writer of
// socket state.
type Hub struct {
	registry *teams.Registry
	logger   *zap.Logger

	// Registered clients by team
	clients map[string]*Client // teamID -> client

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	mu sync.RWMutex
}

type delivery struct {
	msgType string
	teamID  string // empty broadcasts
	payload any
}

// NewHub creates a hub. Run must be started before Deliver is called.
func NewHub(registry *teams.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		registry:   registry,
		logger:     logger.Named("ws"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case d := <-h.deliver:
			h.deliverMessage(d)
		}
	}
}

// Deliver implements the pipeline fan-out sink. An empty teamID
// broadcasts to every connected team. Never blocks the pipeline: the
// hub queue is bounded and overflow drops the message.
func (h *Hub) Deliver(msgType, teamID string, payload any) {
	select {
	case h.deliver <- delivery{msgType: msgType, teamID: teamID, payload: payload}:
	default:
		h.logger.Warn("fan-out queue full, message dropped", zap.String("type", msgType))
	}
}

// registerClient installs a client, evicting any previous socket for
// the same team.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[client.teamID]; ok {
		close(old.send)
		h.logger.Info("evicting previous connection", zap.String("team_id", client.teamID))
	} else {
		metrics.GetCollector().RecordWSConnection(1)
	}
	h.clients[client.teamID] = client
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Only remove if this client still owns the slot; it may already
	// have been evicted by a reconnect.
	if current, ok := h.clients[client.teamID]; ok && current == client {
		delete(h.clients, client.teamID)
		close(client.send)
		metrics.GetCollector().RecordWSConnection(-1)
	}
}

func (h *Hub) deliverMessage(d delivery) {
	h.mu.RLock()
	targets := make([]*Client, 0, 1)
	if d.teamID == "" {
		for _, client := range h.clients {
			targets = append(targets, client)
		}
	} else if client, ok := h.clients[d.teamID]; ok {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.enqueue(d.msgType, d.payload)
		metrics.GetCollector().RecordWSMessage(d.msgType)
	}
}

// ClientCount returns the number of connected teams.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request. The API key rides the query string;
// an unknown key closes the socket with policy violation 1008.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	apiKey := r.URL.Query().Get("api_key")
	team, ok := h.registry.Authenticate(apiKey)
	if !ok {
		deadline := time.Now().Add(writeWait)
		msg := formatCloseMessage(closePolicyViolation, "invalid api key")
		_ = conn.WriteControl(closeMessageType, msg, deadline)
		conn.Close()
		return
	}

	client := newClient(h, conn, team.TeamID)
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// marshalEnvelope stamps the frame with the client's next sequence
// number.
func marshalEnvelope(msgType string, seq uint64, payload any) ([]byte, error) {
	return json.Marshal(&Envelope{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Seq:       seq,
		Data:      payload,
	})
}
