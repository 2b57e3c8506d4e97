// Package ws bridges engine events to WebSocket clients. The hub implements
// domain.ProgressSink so the optimizer can stream grid progress to browsers,
// and domain.NotificationSink so live bot updates reach the UI in real time.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kripteks/tradecore/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// allSessions subscribes a client to every event regardless of session.
const allSessions = "*"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS enforcement happens at the HTTP middleware layer.
		return true
	},
}

// client is one WebSocket connection with its session subscriptions.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to manage subscriptions:
//
//	{"action":"subscribe","sessions":["<session-id>"]}
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Sessions []string `json:"sessions"`
}

// envelope wraps every outgoing frame with a type and session tag.
type envelope struct {
	Type      string `json:"type"` // "progress", "trade", "bot_update"
	SessionID string `json:"session_id,omitempty"`
	Payload   any    `json:"payload"`
}

type broadcastMsg struct {
	session string
	data    []byte
}

// Hub manages connected clients and fans out events. Publishing never
// blocks: a full hub queue or a slow client drops the message.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. Call Run in a goroutine to start the event loop.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Publish implements domain.ProgressSink.
func (h *Hub) Publish(sessionID string, event domain.ProgressEvent) {
	h.push(sessionID, envelope{Type: "progress", SessionID: sessionID, Payload: event})
}

// NotifyTrade implements domain.NotificationSink. Trades are not scoped to
// an optimizer session; every client receives them.
func (h *Hub) NotifyTrade(ctx context.Context, trade domain.Trade) {
	h.push(allSessions, envelope{Type: "trade", Payload: trade})
}

// NotifyBotUpdate implements domain.NotificationSink.
func (h *Hub) NotifyBotUpdate(ctx context.Context, bot domain.Bot) {
	h.push(allSessions, envelope{Type: "bot_update", Payload: bot})
}

func (h *Hub) push(session string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("marshal event", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- broadcastMsg{session: session, data: data}:
	default:
		h.logger.Warn("hub queue full, dropping event", slog.String("type", env.Type))
	}
}

// Run is the hub's main loop: client registration and message fan-out. It
// exits when ctx is cancelled, closing every client connection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg.session) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades the request and registers the client. New clients start
// subscribed to everything; they can narrow to specific sessions afterwards.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{allSessions: true},
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		// Narrowing to explicit sessions drops the catch-all.
		if len(msg.Sessions) > 0 {
			delete(c.subs, allSessions)
		}
		for _, s := range msg.Sessions {
			c.subs[s] = true
		}
	case "unsubscribe":
		for _, s := range msg.Sessions {
			delete(c.subs, s)
		}
	}
}

func (c *client) wants(session string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if session == allSessions {
		return true
	}
	return c.subs[allSessions] || c.subs[session]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var (
	_ domain.ProgressSink     = (*Hub)(nil)
	_ domain.NotificationSink = (*Hub)(nil)
)
