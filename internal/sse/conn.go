package sse

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Conn is an open event stream over an HTTP response body.
type Conn struct {
	body      io.ReadCloser
	dec       *Decoder
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an event-stream response body.
func NewConn(body io.ReadCloser, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{body: body, dec: NewDecoder(body), logger: logger}
}

// ReadLoop calls onData with the data of every event until the stream ends,
// the body fails, or ctx is cancelled. It returns io.EOF when the server
// closed the stream.
func (c *Conn) ReadLoop(ctx context.Context, onData func(data []byte)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// Closing the body unblocks the pending read.
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		ev, err := c.dec.Next()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("event stream read error", "error", err)
			}
			return err
		}
		onData([]byte(ev.Data))
	}
}

// Close closes the response body. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.body.Close()
	})
	return c.closeErr
}
