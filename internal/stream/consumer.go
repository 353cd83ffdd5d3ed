package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// State is a Consumer's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Source is an open event stream delivering raw frames.
type Source interface {
	ReadLoop(ctx context.Context, onData func(data []byte)) error
	Close() error
}

// Opener opens the event stream of a conversation.
type Opener interface {
	OpenStream(ctx context.Context, conversationID string) (Source, error)
}

// Handlers are notified from the consumer's goroutine. OnChunk runs while the
// consumer holds its lock and must not call Close.
type Handlers struct {
	OnChunk    func(text string)
	OnError    func(err *StreamError)
	OnComplete func()
}

// Consumer reads one conversation turn's event stream into a transcript.
type Consumer struct {
	conversationID string
	transcript     *Transcript
	handlers       Handlers
	logger         *slog.Logger

	mu     sync.Mutex
	state  State
	err    error
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates an idle consumer for conversationID writing into transcript.
func NewConsumer(conversationID string, transcript *Transcript, h Handlers, logger *slog.Logger) *Consumer {
	if transcript == nil {
		transcript = NewTranscript()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conversationID: conversationID,
		transcript:     transcript,
		handlers:       h,
		logger:         logger.With("conversation", conversationID),
		done:           make(chan struct{}),
	}
}

// Start moves an idle consumer to Connecting and begins reading in the background.
func (c *Consumer) Start(ctx context.Context, opener Opener) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	c.state = StateConnecting
	c.parent = ctx
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(streamCtx, opener)
	return nil
}

// ConversationID returns the conversation the consumer is bound to.
func (c *Consumer) ConversationID() string {
	return c.conversationID
}

// Transcript returns the transcript the consumer writes into.
func (c *Consumer) Transcript() *Transcript {
	return c.transcript
}

// State returns the current state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the consumer's goroutine has exited.
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the stream terminates and returns nil on completion,
// a *StreamError on error, or ErrClosed when it was closed.
func (c *Consumer) Wait(ctx context.Context) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close terminates the stream without notifying handlers. Once Close
// returns no further event is processed.
func (c *Consumer) Close() {
	c.mu.Lock()
	switch c.state {
	case StateTerminated:
		c.mu.Unlock()
		return
	case StateIdle:
		c.state = StateTerminated
		c.err = ErrClosed
		c.mu.Unlock()
		close(c.done)
		return
	}
	c.state = StateTerminated
	c.err = ErrClosed
	c.mu.Unlock()

	c.cancel()
	<-c.done
	c.logger.Debug("stream closed")
}

func (c *Consumer) run(ctx context.Context, opener Opener) {
	defer close(c.done)
	defer c.cancel()

	src, err := opener.OpenStream(ctx, c.conversationID)
	if err != nil {
		c.transportDone(err)
		return
	}
	defer src.Close()
	c.logger.Debug("stream opened")

	err = src.ReadLoop(ctx, c.handleFrame)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	c.transportDone(err)
}

// transportDone handles the end of the read loop. It is a no-op if the stream
// already terminated. A cancelled parent context ends the stream quietly.
func (c *Consumer) transportDone(err error) {
	if parentErr := c.parent.Err(); parentErr != nil {
		c.terminate(parentErr, false)
		return
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.terminate(&StreamError{ConversationID: c.conversationID, Err: err}, true)
}

func (c *Consumer) handleFrame(raw []byte) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnecting {
		c.state = StateStreaming
	}

	ev, err := protocol.DecodeStreamEvent(raw)
	if err != nil {
		c.mu.Unlock()
		perr := &ParseError{Raw: string(raw), Err: err}
		c.logger.Warn("invalid stream event", "error", perr, "raw", perr.Raw)
		return
	}

	switch ev.Type {
	case protocol.EventChunk:
		c.transcript.AppendAssistantText(ev.Content)
		if c.handlers.OnChunk != nil {
			c.handlers.OnChunk(ev.Content)
		}
		c.mu.Unlock()
	case protocol.EventComplete:
		c.mu.Unlock()
		c.terminate(nil, true)
	case protocol.EventError:
		c.mu.Unlock()
		msg := ev.Error
		if msg == "" {
			msg = "unknown error"
		}
		c.terminate(&StreamError{ConversationID: c.conversationID, Message: msg}, true)
	default:
		c.mu.Unlock()
	}
}

// terminate moves the consumer to Terminated once and notifies handlers if asked.
func (c *Consumer) terminate(err error, notify bool) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	c.err = err
	c.mu.Unlock()

	c.cancel()
	if !notify {
		return
	}
	var serr *StreamError
	if errors.As(err, &serr) {
		c.logger.Error("stream error", "error", serr)
		if c.handlers.OnError != nil {
			c.handlers.OnError(serr)
		}
	} else {
		c.logger.Debug("stream complete")
	}
	if c.handlers.OnComplete != nil {
		c.handlers.OnComplete()
	}
}
