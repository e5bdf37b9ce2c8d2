package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/praxis/praxis-marketplace-gateway/internal/bus"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames.
	maxMessageSize = 4096
)

// Client is one websocket subscriber.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow subscriber
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// EventStream relays EventBus events to websocket subscribers as
// {"type": ..., "payload": ..., "timestamp": ...} messages.
type EventStream struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewEventStream(eventBus *bus.EventBus, allowedOrigins []string, logger *logrus.Logger) *EventStream {
	if logger == nil {
		logger = logrus.New()
	}
	stream := &EventStream{
		hub:    newHub(),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
	if eventBus != nil {
		eventBus.SubscribeAll(stream.handleEvent)
	}
	return stream
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run dispatches until Stop is called.
func (s *EventStream) Run() {
	s.hub.run()
}

func (s *EventStream) Stop() {
	s.hub.stopOnce.Do(func() { close(s.hub.stop) })
}

func (s *EventStream) Clients() int {
	return s.hub.clientCount()
}

// ServeHTTP upgrades the request and registers the subscriber.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: uuid.NewString(),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.stop:
		_ = conn.Close()
		return
	}
	s.logger.Infof("New WebSocket client connected: %s", client.clientID)

	go client.writePump()
	go s.readPump(client)
}

// readPump keeps the read deadline fresh and drops anything the client sends.
func (s *EventStream) readPump(client *Client) {
	defer func() {
		select {
		case client.hub.unregister <- client:
		case <-client.hub.stop:
		}
		_ = client.conn.Close()
		s.logger.Infof("WebSocket client disconnected: %s", client.clientID)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debugf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
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

func (s *EventStream) handleEvent(event bus.Event) {
	message, err := json.Marshal(map[string]interface{}{
		"type":      string(event.Type),
		"payload":   event.Payload,
		"timestamp": event.Timestamp,
	})
	if err != nil {
		s.logger.Debugf("Failed to marshal event: %v", err)
		return
	}

	select {
	case s.hub.broadcast <- message:
	case <-s.hub.stop:
	default:
		s.logger.Debugf("Broadcast queue full, dropping %s", event.Type)
	}
}
