package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/observability"
)

// HubOptions configures Hub.
type HubOptions struct {
	SendBuffer   int           // Per-subscriber queue. Default: 64
	WriteTimeout time.Duration // Default: 10s
	PingInterval time.Duration // Default: 30s
	// CheckOrigin validates the handshake origin. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
	Logger      *log.Logger
}

// Hub is a WebSocket publisher. Each subscriber gets its own buffered queue;
// subscribers that fall behind are disconnected.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *log.Logger

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 64
	}

	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Hub{
		upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin},
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger,
		clients:      make(map[*subscriber]struct{}),
	}
}

// Compile-time interface check.
var _ Publisher = (*Hub)(nil)

// Name implements Publisher.
func (h *Hub) Name() string { return "websocket" }

// Publish sends n to every connected subscriber without waiting for any of them.
func (h *Hub) Publish(_ context.Context, n domain.Notification) error {
	msg, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	h.mu.RLock()
	var slow []*subscriber
	for s := range h.clients {
		select {
		case s.send <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		observability.RecordDropped(h.Name(), "slow_subscriber")
		h.logger.Printf("Dropping slow subscriber %s", s.conn.RemoteAddr())
		h.remove(s)
	}
	return nil
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade error: %v", err)
		return
	}

	s := &subscriber{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	observability.UpdateSubscribers(count)

	go h.writeLoop(s)
	go h.readLoop(s)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*subscriber, 0, len(h.clients))
	for s := range h.clients {
		clients = append(clients, s)
	}
	h.clients = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, s := range clients {
		s.stop()
	}
	observability.UpdateSubscribers(0)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.clients, s)
	count := len(h.clients)
	h.mu.Unlock()

	s.stop()
	observability.UpdateSubscribers(count)
}

// writeLoop owns all writes to the connection.
func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(s)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(4096)
	pongWait := 2 * h.pingInterval
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
