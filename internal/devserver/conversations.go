package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// Message is one turn recorded in a conversation.
type Message struct {
	Role   string    `json:"role"`
	Text   string    `json:"text"`
	FileID string    `json:"fileId,omitempty"`
	At     time.Time `json:"at"`
}

// Conversation is the server record of a chat.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Conversations is a thread-safe in-memory conversation store.
type Conversations struct {
	mu    sync.RWMutex
	byID  map[string]*Conversation
	order []string
}

// NewConversations creates an empty store.
func NewConversations() *Conversations {
	return &Conversations{byID: make(map[string]*Conversation)}
}

// Create adds a conversation with a fresh id.
func (c *Conversations) Create(title string) Conversation {
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[conv.ID] = conv
	c.order = append(c.order, conv.ID)
	return copyConversation(conv)
}

// Get returns a copy of the conversation.
func (c *Conversations) Get(id string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.byID[id]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(conv), true
}

// List returns all conversations in creation order, without messages.
func (c *Conversations) List() []protocol.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.Conversation, 0, len(c.order))
	for _, id := range c.order {
		conv := c.byID[id]
		out = append(out, protocol.Conversation{ID: conv.ID, Title: conv.Title})
	}
	return out
}

// Append records m on conversation id. It reports false for an unknown id.
func (c *Conversations) Append(id string, m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.byID[id]
	if !ok {
		return false
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	conv.Messages = append(conv.Messages, m)
	return true
}

func copyConversation(conv *Conversation) Conversation {
	out := *conv
	out.Messages = append([]Message(nil), conv.Messages...)
	return out
}
