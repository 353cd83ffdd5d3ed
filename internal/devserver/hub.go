package devserver

import (
	"sync"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

const (
	subscriberBuffer = 256
	maxBacklog       = 4096
)

// subscriber holds one stream connection and its event channel.
type subscriber struct {
	id   uint64
	send chan protocol.StreamEvent
}

// Hub routes reply events to the stream connection of each conversation.
// Each conversation has at most one subscriber: a new connection replaces the
// previous one, whose channel is closed. Events published while no one is
// subscribed are kept in a backlog and replayed to the next subscriber.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]*subscriber            // conversation id -> subscriber
	backlog map[string][]protocol.StreamEvent // conversation id -> undelivered events
	nextID  uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]*subscriber),
		backlog: make(map[string][]protocol.StreamEvent),
	}
}

// Subscribe attaches a stream to conversationID. The returned channel is
// closed by remove or when a newer subscription replaces this one.
func (h *Hub) Subscribe(conversationID string) (events <-chan protocol.StreamEvent, remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pending := h.backlog[conversationID]
	delete(h.backlog, conversationID)

	size := subscriberBuffer
	if len(pending) > size {
		size = len(pending)
	}
	h.nextID++
	sub := &subscriber{id: h.nextID, send: make(chan protocol.StreamEvent, size)}
	for _, ev := range pending {
		sub.send <- ev
	}

	// Last subscription wins
	if old, ok := h.subs[conversationID]; ok {
		close(old.send)
	}
	h.subs[conversationID] = sub

	return sub.send, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if cur, ok := h.subs[conversationID]; ok && cur.id == sub.id {
			delete(h.subs, conversationID)
			close(sub.send)
		}
	}
}

// Publish delivers ev to the conversation's subscriber, or keeps it for the
// next one. It never blocks: a subscriber whose buffer is full loses the event.
func (h *Hub) Publish(conversationID string, ev protocol.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[conversationID]
	if !ok {
		q := h.backlog[conversationID]
		if len(q) < maxBacklog {
			h.backlog[conversationID] = append(q, ev)
		}
		return
	}
	select {
	case sub.send <- ev:
	default:
		// Buffer full, drop rather than block the responder
	}
}

// Subscribed reports whether conversationID has a live stream.
func (h *Hub) Subscribed(conversationID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[conversationID]
	return ok
}

// Backlog returns the number of undelivered events for conversationID.
func (h *Hub) Backlog(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.backlog[conversationID])
}

// Drop forgets everything about conversationID, closing its subscriber.
func (h *Hub) Drop(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[conversationID]; ok {
		close(sub.send)
		delete(h.subs, conversationID)
	}
	delete(h.backlog, conversationID)
}
