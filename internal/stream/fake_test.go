package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// fakeSource delivers frames pushed on its channel. Closing frames ends the
// stream with io.EOF; a value on fail ends it with that error.
type fakeSource struct {
	frames chan string
	fail   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: make(chan string),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeSource) ReadLoop(ctx context.Context, onData func([]byte)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.fail:
			return err
		case f, ok := <-s.frames:
			if !ok {
				return io.EOF
			}
			onData([]byte(f))
		}
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// send blocks until the consumer's read loop has taken the frame.
func (s *fakeSource) send(ctx context.Context, frame string) error {
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return errors.New("source closed")
	}
}

type fakeOpener struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	opened  []string
	err     error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{sources: map[string]*fakeSource{}}
}

func (o *fakeOpener) source(id string) *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sources[id]
	if !ok {
		s = newFakeSource()
		o.sources[id] = s
	}
	return s
}

func (o *fakeOpener) OpenStream(ctx context.Context, id string) (Source, error) {
	o.mu.Lock()
	o.opened = append(o.opened, id)
	err := o.err
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return o.source(id), nil
}
