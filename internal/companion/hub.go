// Package companion implements a simulated companion daemon: the HTTP and
// WebSocket surface greenroom connects to, plus a scripted production run
// that exercises the full event protocol. It exists so the client, the CLI,
// and the upload pipeline can be driven end-to-end without the real desktop
// application.
package companion

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"greenroom/internal/events"
)

// Hub fans broadcast envelopes out to every connected WebSocket client and
// answers the client-side heartbeat: an inbound {"type":"ping"} frame gets a
// pong on the same connection. Register, unregister, broadcast, and replies
// all go through channels; the run loop is the only goroutine touching the
// client set.
type Hub struct {
	log *log.Logger

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	reply      chan directMsg
	upgrader   websocket.Upgrader

	count atomic.Int32
}

type directMsg struct {
	conn *websocket.Conn
	data []byte
}

// NewHub allocates a hub with buffered channels. Call Run in a goroutine.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log:        logger,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, 256),
		reply:      make(chan directMsg, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Run processes registrations, broadcasts, and replies in a single select
// loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				_ = c.Close()
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			h.send(c, marshalEnvelope(events.TypeHello, "", nil))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				h.send(c, msg)
			}

		case m := <-h.reply:
			if _, ok := h.clients[m.conn]; ok {
				h.send(m.conn, m.data)
			}
		}
	}
}

func (h *Hub) send(c *websocket.Conn, msg []byte) {
	_ = c.SetWriteDeadline(time.Now().Add(3 * time.Second))
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.drop(c)
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.count.Store(int32(len(h.clients)))
	}
	_ = c.Close()
}

// Handler upgrades incoming requests and registers the connection. The read
// goroutine watches for client heartbeats and queues pong replies through
// the run loop, so there is never more than one writer per connection.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(msg, &frame) != nil {
					continue
				}
				if frame.Type == "ping" {
					h.reply <- directMsg{conn: conn, data: marshalEnvelope(events.TypePong, "", nil)}
				}
			}
		}()
	})
}

// BroadcastJSON marshals v and queues it for every connected client. A full
// broadcast channel drops the message rather than blocking the caller.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- b:
	default:
		if h.log != nil {
			h.log.Printf("hub: broadcast queue full, dropping frame")
		}
	}
}

// marshalEnvelope builds a wire frame for the given type. payload may be nil.
func marshalEnvelope(typ events.Type, sessionID string, payload any) []byte {
	b, _ := json.Marshal(buildEnvelope(typ, sessionID, payload))
	return b
}
