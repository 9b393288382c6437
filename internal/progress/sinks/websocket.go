package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsReadLimit      = 512
	defaultWSBacklog = 16
)

// WebSocketConfig tunes the broadcaster.
type WebSocketConfig struct {
	// Backlog is the per-client queue; a client that falls further behind is
	// disconnected.
	Backlog int
	// CheckOrigin overrides the upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
	Logger      *zap.Logger
}

// WebSocketSink streams displays to connected presenters. It is both a
// progress.Sink and the http.Handler that accepts subscribers. New
// subscribers receive the latest display immediately.
type WebSocketSink struct {
	upgrader websocket.Upgrader
	backlog  int
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    []byte
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketSink constructs a broadcaster with no subscribers.
func NewWebSocketSink(cfg WebSocketConfig) *WebSocketSink {
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultWSBacklog
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		backlog: cfg.Backlog,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Subscribers returns the number of connected clients.
func (s *WebSocketSink) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and registers the subscriber.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, s.backlog)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	if s.last != nil {
		c.send <- s.last
	}
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

// Consume fans the batch out to every subscriber without blocking on slow
// ones.
func (s *WebSocketSink) Consume(_ context.Context, batch []event.Display) error {
	for _, d := range batch {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal display: %w", err)
		}
		s.broadcast(payload)
	}
	return nil
}

// Close disconnects every subscriber.
func (s *WebSocketSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		s.dropLocked(c)
	}
	return nil
}

func (s *WebSocketSink) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = payload
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Warn("websocket subscriber too slow, disconnecting", zap.String("remote", c.conn.RemoteAddr().String()))
			s.dropLocked(c)
		}
	}
}

func (s *WebSocketSink) drop(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

func (s *WebSocketSink) dropLocked(c *wsClient) {
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
}

// readPump discards inbound frames and keeps the pong deadline fresh.
func (s *WebSocketSink) readPump(c *wsClient) {
	defer func() {
		s.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (s *WebSocketSink) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
