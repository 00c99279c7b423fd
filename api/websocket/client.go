package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send buffer
	sendBufferSize = 256

	closePolicyViolation = websocket.ClosePolicyViolation
	closeMessageType     = websocket.CloseMessage
)

var formatCloseMessage = websocket.FormatCloseMessage

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one team's WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	teamID string

	// Per-connection envelope counter. Only the hub goroutine touches
	// it, via enqueue.
	seq uint64

	connectedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, teamID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		teamID:      teamID,
		connectedAt: time.Now(),
	}
}

// enqueue frames and buffers one message. A full buffer drops the
// connection rather than back-pressuring the hub; the team reconnects
// and resumes from live state.
func (c *Client) enqueue(msgType string, payload any) {
	c.seq++
	data, err := marshalEnvelope(msgType, c.seq, payload)
	if err != nil {
		c.hub.logger.Error("marshal envelope", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("send buffer full, dropping connection", zap.String("team_id", c.teamID))
		c.conn.Close()
	}
}

// readPump drains inbound frames. The protocol is server-push only, so
// reads exist to detect disconnects and answer pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read", zap.String("team_id", c.teamID), zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps buffered messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub evicted this connection
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TeamID returns the owning team.
func (c *Client) TeamID() string {
	return c.teamID
}
