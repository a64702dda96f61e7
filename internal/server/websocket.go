package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/pkg/types"
)

// WebSocket message types
const (
	MessageTypeAnomaly   = "anomaly"
	MessageTypeHeartbeat = "heartbeat"
)

// WSMessage is the envelope sent to alert stream subscribers.
type WSMessage struct {
	Type      string         `json:"type"`
	Anomaly   *types.Anomaly `json:"anomaly,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// defaultOrigins are the development origins accepted when no explicit
// allow-list is configured.
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// newUpgrader builds a WebSocket upgrader that only accepts the configured
// origins. "*" allows everything. Requests without an Origin header
// (non-browser clients) are always accepted.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" {
					return true
				}
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// AlertHub fans anomalies out to connected WebSocket clients. Slow clients
// are disconnected rather than allowed to block the broadcast path.
type AlertHub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
	done chan struct{}
}

// NewAlertHub creates an empty hub.
func NewAlertHub(log *zap.Logger) *AlertHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertHub{
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
}

// BroadcastAnomaly sends an anomaly to every connected client. Matches the
// analytics.AlertCallback signature so it can subscribe to the pipeline
// directly.
func (h *AlertHub) BroadcastAnomaly(a types.Anomaly) {
	msg := WSMessage{
		Type:      MessageTypeAnomaly,
		Anomaly:   &a,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Client is not draining its queue; drop it.
			h.removeLocked(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *AlertHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects future registrations.
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *AlertHub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WebSocketConnections.Inc()
	return true
}

func (h *AlertHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *AlertHub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)
	metrics.WebSocketConnections.Dec()
}

// handleAlertStream — GET /api/v1/alerts/stream
//
// Upgrades to a WebSocket and streams anomalies as they are admitted.
func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	upgrader := newUpgrader(s.config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade rejected", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan WSMessage, 64),
		done: make(chan struct{}),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}
	s.log.Info("alert stream client connected", zap.String("remote", r.RemoteAddr))

	go s.writeLoop(client)
	s.readLoop(client)
}

// writeLoop pushes queued messages and heartbeats to one client.
func (s *Server) writeLoop(c *wsClient) {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.done:
			c.conn.Close()
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.hub.remove(c)
				return
			}
			metrics.WebSocketMessagesTotal.WithLabelValues("out").Inc()
		case <-heartbeat.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			msg := WSMessage{Type: MessageTypeHeartbeat, Timestamp: time.Now()}
			if err := c.conn.WriteJSON(msg); err != nil {
				s.hub.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames and detects disconnects. The stream is
// one-way; clients only listen.
func (s *Server) readLoop(c *wsClient) {
	defer s.hub.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("in").Inc()
	}
}
