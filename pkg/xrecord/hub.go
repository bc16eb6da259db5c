// Package xrecord relays decoded <timestep> XML fragments to live
// WebSocket subscribers, for the --live-ws mode of scriptcast-record.
// It adapts the BufferAggregator/WebSocketServer pair from
// pkg/stream/buffer_aggregator.go and pkg/stream/websocket.go into a
// broadcast-only relay: gin-gonic is dropped since nothing else in
// scriptcast needs an HTTP router, so the upgrade handler is a plain
// net/http.Handler instead of a gin.Context method.
package xrecord

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thfi/scriptcast/pkg/config"
)

// Hub fans decoded XML fragments out to every connected subscriber. It
// implements io.Writer so it can be handed directly to an ansi.Decoder
// or timing.Driver as the output sink for a live session.
type Hub struct {
	cfg      *config.Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// NewHub builds a Hub with no connected subscribers.
func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the request to a WebSocket and relays broadcast
// frames to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Bounded: a slow subscriber drops frames rather than blocking the
	// decoder that is feeding Broadcast.
	send := make(chan []byte, 32)
	h.mu.Lock()
	h.conns[conn] = send
	h.mu.Unlock()

	go h.pingLoop(conn)
	h.writeLoop(conn, send)
}

func (h *Hub) writeLoop(conn *websocket.Conn, send chan []byte) {
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for frame := range send {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.WebSocketPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

// Broadcast fans frame out to every connected subscriber. A subscriber
// whose channel is full drops the frame instead of blocking the caller.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.conns {
		select {
		case send <- frame:
		default:
		}
	}
}

// Write implements io.Writer by broadcasting p to every subscriber. It
// never blocks on a slow client and never returns an error: a relay
// with zero subscribers is a valid, silent no-op.
func (h *Hub) Write(p []byte) (int, error) {
	frame := append([]byte(nil), p...)
	h.Broadcast(frame)
	return len(p), nil
}

// Subscribers reports the current subscriber count, mainly for tests
// and diagnostics.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
