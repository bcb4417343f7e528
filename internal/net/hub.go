package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"rewind/server/internal/plan"
	"rewind/server/internal/timeline"
)

// Hub fans timeline status out to WebSocket observers. Subscribers can also
// request previews over the socket; everything else goes through HTTP.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) writeMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

type statusMessage struct {
	Ver    int             `json:"ver"`
	Type   string          `json:"type"`
	Status timeline.Status `json:"status"`
}

type previewMessage struct {
	Ver     int          `json:"ver"`
	Type    string       `json:"type"`
	Seconds int          `json:"seconds"`
	Summary plan.Summary `json:"summary"`
}

type errorMessage struct {
	Ver    int    `json:"ver"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type observerMessage struct {
	Type    string `json:"type"`
	Seconds int    `json:"seconds"`
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]*subscriber)}
}

func (h *Hub) subscribe(conn *websocket.Conn) (uint64, *subscriber) {
	id := h.nextID.Add(1)
	sub := &subscriber{conn: conn}
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()
	return id, sub
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

// SubscriberCount reports the number of live observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// BroadcastStatus marshals the status once and pushes it to every observer,
// dropping any whose write fails.
func (h *Hub) BroadcastStatus(status timeline.Status) {
	data, err := json.Marshal(statusMessage{Ver: ProtocolVersion, Type: "status", Status: status})
	if err != nil {
		return
	}

	h.mu.Lock()
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.writeMessage(websocket.TextMessage, data); err != nil {
			h.unsubscribe(id)
		}
	}
}

// CloseAll disconnects every observer, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}

// HandleUpgrade returns the /ws endpoint handler. The read loop accepts
// preview requests and replies on the same connection.
func (h *Hub) HandleUpgrade(tl Timeline, logger *log.Logger) nethttp.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed: %v", err)
			return
		}

		id, sub := h.subscribe(conn)
		defer h.unsubscribe(id)

		// Initial status so observers render without waiting for the
		// next broadcast.
		data, err := json.Marshal(statusMessage{Ver: ProtocolVersion, Type: "status", Status: tl.Status()})
		if err == nil {
			if err := sub.writeMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg observerMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				logger.Printf("discarding malformed observer message: %v", err)
				continue
			}

			switch msg.Type {
			case "preview":
				summary, err := tl.Preview(msg.Seconds)
				var out []byte
				if err != nil {
					out, _ = json.Marshal(errorMessage{Ver: ProtocolVersion, Type: "error", Reason: err.Error()})
				} else {
					out, _ = json.Marshal(previewMessage{
						Ver:     ProtocolVersion,
						Type:    "preview",
						Seconds: msg.Seconds,
						Summary: summary,
					})
				}
				if out == nil {
					continue
				}
				if err := sub.writeMessage(websocket.TextMessage, out); err != nil {
					return
				}
			case "status":
				out, err := json.Marshal(statusMessage{Ver: ProtocolVersion, Type: "status", Status: tl.Status()})
				if err != nil {
					continue
				}
				if err := sub.writeMessage(websocket.TextMessage, out); err != nil {
					return
				}
			default:
				logger.Printf("unknown observer message type %q", msg.Type)
			}
		}
	}
}
