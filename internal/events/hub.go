// Package events broadcasts detection activity to WebSocket subscribers.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	pongWait              = 60 * time.Second
	defaultPingPeriod     = (pongWait * 9) / 10
	defaultStatusInterval = 30 * time.Second
	maxMessageSize        = 512
	sendBuffer            = 64
)

// Config controls hub limits and event content.
type Config struct {
	MaxConnections  int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	StatusInterval  time.Duration
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
}

// Hub maintains the set of subscribers and fans events out to them. Slow
// clients are dropped rather than allowed to stall the broadcast loop.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once

	started    time.Time
	detections atomic.Int64

	mu     sync.RWMutex
	active int
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds a hub; call Run in a goroutine to start it.
func NewHub(config Config, logger *zap.Logger) *Hub {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 100
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteWait
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingPeriod
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = defaultStatusInterval
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = 4096
	}

	h := &Hub{
		config:     config,
		logger:     logger.With(zap.String("component", "events")),
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		started:    time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Run processes registration and broadcast events until Stop is called.
func (h *Hub) Run() {
	status := time.NewTicker(h.config.StatusInterval)
	defer status.Stop()

	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case event := <-h.broadcast:
			h.fanOut(event)
		case <-status.C:
			h.fanOut(Event{
				Type:      EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data: SystemStatusEvent{
					Status:           "healthy",
					Uptime:           time.Since(h.started).Round(time.Second).String(),
					TotalDetections:  h.detections.Load(),
					ConnectedClients: h.ActiveClients(),
				},
			})
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				if c.conn != nil {
					c.conn.Close()
				}
				delete(h.clients, c)
			}
			h.active = 0
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Broadcast queues an event for every connected client. Events are dropped
// when the hub backlog is full.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == EventTypeDetection {
		h.detections.Add(1)
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("event dropped, broadcast backlog full", zap.String("type", string(event.Type)))
	}
}

// ActiveClients returns the current subscriber count.
func (h *Hub) ActiveClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// ServeWS upgrades an HTTP request to a WebSocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.ActiveClients() >= h.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// dropClient queues a client for removal without blocking after Stop.
func (h *Hub) dropClient(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.active++
	h.mu.Unlock()

	h.logger.Info("client connected",
		zap.String("client_id", c.id),
		zap.Int("active", h.ActiveClients()))

	h.Broadcast(Event{
		Type: EventTypeConnection,
		Data: ConnectionEvent{Action: "connected", ClientID: c.id},
	})
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.active--
		close(c.send)
	}
	h.mu.Unlock()

	h.logger.Info("client disconnected",
		zap.String("client_id", c.id),
		zap.Int("active", h.ActiveClients()))
}

func (h *Hub) fanOut(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; drop it on the next unregister cycle.
			go h.dropClient(c)
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
