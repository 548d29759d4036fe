package events

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

const (
	writeTimeout = 2 * time.Second
	// sendBuffer is how many messages a subscriber may fall behind before it
	// is dropped.
	sendBuffer = 16
)

// envelope is the wire format of every message sent to subscribers.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type subscriber struct {
	ws   *websocket.Conn
	send chan []byte
}

// Hub fans events out to websocket subscribers by topic. It implements both
// Sink and ProgressPublisher. Each subscriber has its own writer goroutine so
// a slow socket never holds up the publisher.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*websocket.Conn]*subscriber
}

type Stats struct {
	Topics      int `json:"topics"`
	Subscribers int `json:"subscribers"`
}

func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*websocket.Conn]*subscriber),
	}
}

func (h *Hub) Subscribe(topic string, ws *websocket.Conn) {
	sub := &subscriber{ws: ws, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*websocket.Conn]*subscriber)
		h.topics[topic] = subs
	}
	subs[ws] = sub
	h.mu.Unlock()

	go h.writeLoop(topic, sub)
}

func (h *Hub) Unsubscribe(topic string, ws *websocket.Conn) {
	h.mu.Lock()
	h.remove(topic, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// remove must be called with h.mu held. The send channel is only ever closed
// here, so a broadcast holding the lock never sends on a closed channel.
func (h *Hub) remove(topic string, ws *websocket.Conn) {
	subs := h.topics[topic]
	sub, ok := subs[ws]
	if !ok {
		return
	}
	close(sub.send)
	delete(subs, ws)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) writeLoop(topic string, sub *subscriber) {
	defer sub.ws.Close()
	for msg := range sub.send {
		_ = sub.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.mu.Lock()
			h.remove(topic, sub.ws)
			h.mu.Unlock()
			return
		}
	}
}

// BroadcastJSON queues a typed message for every subscriber of the topic.
// Subscribers whose buffer is full are dropped.
func (h *Hub) BroadcastJSON(ctx context.Context, topic, typ string, data interface{}) {
	b, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		logger.FromContext(ctx).Err(err).Error("event marshal error")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, sub := range h.topics[topic] {
		select {
		case sub.send <- b:
		default:
			logger.FromContext(ctx).Warn("dropping slow event subscriber", logger.Data{"topic": topic})
			h.remove(topic, ws)
		}
	}
}

func (h *Hub) BookChanged(ctx context.Context, evt BookChanged) {
	h.BroadcastJSON(ctx, TopicBooks, TypeBookChanged, evt)
}

func (h *Hub) SearchProgress(ctx context.Context, evt SearchProgress) {
	h.BroadcastJSON(ctx, SearchTopic(evt.QueryHash), TypeSearchStatus, evt)
}

func (h *Hub) SearchResults(ctx context.Context, evt SearchResultsBatch) {
	h.BroadcastJSON(ctx, SearchTopic(evt.QueryHash), TypeSearchResults, evt)
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{Topics: len(h.topics)}
	for _, conns := range h.topics {
		s.Subscribers += len(conns)
	}
	return s
}
