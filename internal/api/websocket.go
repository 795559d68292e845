package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/avews-bridge/internal/infrastructure/config"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/logging"
)

// Message types on the live stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelStateChanged carries every state pushed to the hub.
	ChannelStateChanged = "state.changed"

	clientQueueSize = 64
)

// WSMessage is one frame on the live stream, in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels. IDs, when present, narrows
// state.changed to those hub identifiers (external ids or switch unique ids).
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	IDs      []string `json:"ids,omitempty"`
}

// StateEvent is the payload of a state.changed event.
type StateEvent struct {
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	On         bool   `json:"on"`
	ObservedAt string `json:"observed_at"`
}

// wsRequest is an inbound frame with its payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans state pushes out to live stream clients.
type Hub struct {
	cfg    config.APIWebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected stream consumer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	// subs maps channel to an id filter; a nil filter matches every id.
	subs map[string]map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub returns a hub; zero limits in cfg fall back to the config defaults.
func NewHub(cfg config.APIWebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

func (h *Hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload to every client subscribed to channel without an
// id filter.
func (h *Hub) Broadcast(channel string, payload any) {
	h.publish(channel, "", payload)
}

// RecordState emits a state.changed event. Its signature matches the
// sink's recorders so the hub can sit among them.
func (h *Hub) RecordState(_ context.Context, kind, id string, on bool, at time.Time) error {
	h.publish(ChannelStateChanged, id, StateEvent{
		Kind:       kind,
		ID:         id,
		On:         on,
		ObservedAt: at.UTC().Format(time.RFC3339Nano),
	})
	return nil
}

func (h *Hub) publish(channel, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.wants(channel, id) {
			c.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades GET /ws and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, clientQueueSize),
		subs: make(map[string]map[string]struct{}),
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}

// shutdown closes the queue once; writeLoop then sends a close frame.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue drops data when the client is gone or its queue is full.
func (c *WSClient) enqueue(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) wants(channel, id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	filter, ok := c.subs[channel]
	if !ok {
		return false
	}
	if filter == nil {
		return true
	}
	_, ok = filter[id]
	return ok
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // read errors surface from ReadMessage
	c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // read errors surface from ReadMessage
		c.conn.SetReadDeadline(time.Now().Add(idle))
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	cfg := c.hub.cfg
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // write errors surface from WriteMessage
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &sub) != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid subscription payload"})
			return
		}
		c.reply(req.ID, WSTypeResponse, c.applySubscription(req.Type == WSTypeSubscribe, sub))
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) applySubscription(subscribe bool, sub WSSubscribePayload) map[string]any {
	var filter map[string]struct{}
	if len(sub.IDs) > 0 {
		filter = make(map[string]struct{}, len(sub.IDs))
		for _, id := range sub.IDs {
			filter[id] = struct{}{}
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subs[ch] = filter
		} else {
			delete(c.subs, ch)
		}
	}
	c.mu.Unlock()

	if !subscribe {
		return map[string]any{"unsubscribed": sub.Channels}
	}
	resp := map[string]any{"subscribed": sub.Channels}
	if filter != nil {
		resp["ids"] = sub.IDs
	}
	return resp
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
