package adminapi

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/rs/zerolog"
)

const subscriberBuffer = 64

// EventMessage is one queue event as sent to websocket subscribers.
type EventMessage struct {
	Seq       int64              `json:"seq"`
	Timestamp int64              `json:"ts"`
	Event     commandqueue.Event `json:"event"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// eventHub fans queue events out to websocket subscribers. Queue events are
// emitted synchronously, sometimes under a lane lock, so publish never blocks:
// a subscriber whose buffer is full misses the event.
type eventHub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	seq    int64
	logger zerolog.Logger
}

func newEventHub(logger zerolog.Logger) *eventHub {
	return &eventHub{subs: map[*subscriber]struct{}{}, logger: logger}
}

func (h *eventHub) publish(event commandqueue.Event) {
	data, err := json.Marshal(EventMessage{
		Seq:       atomic.AddInt64(&h.seq, 1),
		Timestamp: time.Now().UnixMilli(),
		Event:     event,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("type", event.Type).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn().Str("type", event.Type).Msg("Event subscriber too slow, dropping event")
		}
	}
}

func (h *eventHub) add(conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *eventHub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

func (h *eventHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[*subscriber]struct{}{}
	h.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

// serve pumps events to conn until the client goes away or the hub closes.
func (h *eventHub) serve(conn *websocket.Conn) {
	sub := h.add(conn)
	defer conn.Close()

	// Reader only detects the peer closing.
	go func() {
		defer h.remove(sub)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for data := range sub.send {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Msg("Event subscriber write failed")
			h.remove(sub)
			break
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
