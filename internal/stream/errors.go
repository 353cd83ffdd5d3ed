package stream

import (
	"errors"
	"fmt"
)

// ErrClosed is the result of a stream that was closed before it completed.
var ErrClosed = errors.New("stream closed")

// StreamError terminates a stream. Message is set when the server signaled
// the error; Err is set for transport failures.
type StreamError struct {
	ConversationID string
	Message        string
	Err            error
}

func (e *StreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("stream %s: server error: %s", e.ConversationID, e.Message)
	}
	return fmt.Sprintf("stream %s: %v", e.ConversationID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ParseError is a malformed event frame. It never terminates a stream.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse event: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
