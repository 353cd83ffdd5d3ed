package stream

import (
	"context"
	"log/slog"
	"sync"
)

// Manager keeps at most one live stream.
type Manager struct {
	opener Opener
	logger *slog.Logger

	mu      sync.Mutex
	current *Consumer
}

// NewManager creates a manager that opens streams with opener.
func NewManager(opener Opener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opener: opener, logger: logger}
}

// Open closes any live stream and then starts a new one for conversationID.
func (m *Manager) Open(ctx context.Context, conversationID string, transcript *Transcript, h Handlers) (*Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	c := NewConsumer(conversationID, transcript, h, m.logger)
	if err := c.Start(ctx, m.opener); err != nil {
		return nil, err
	}
	m.current = c
	return c, nil
}

// Current returns the most recently opened stream, or nil.
func (m *Manager) Current() *Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the live stream, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

// CloseConversation closes the live stream only if it belongs to conversationID.
func (m *Manager) CloseConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ConversationID() == conversationID {
		m.current.Close()
		m.current = nil
	}
}
