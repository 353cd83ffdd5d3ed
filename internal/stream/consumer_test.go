package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/chunkchat/internal/logging"
)

type recorder struct {
	mu        sync.Mutex
	chunks    []string
	errs      []*StreamError
	completes int
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnChunk: func(s string) {
			r.mu.Lock()
			r.chunks = append(r.chunks, s)
			r.mu.Unlock()
		},
		OnError: func(err *StreamError) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnComplete: func() {
			r.mu.Lock()
			r.completes++
			r.mu.Unlock()
		},
	}
}

func startConsumer(t *testing.T, opener *fakeOpener, id string, rec *recorder) *Consumer {
	t.Helper()
	c := NewConsumer(id, NewTranscript(), rec.handlers(), logging.Discard())
	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Start(context.Background(), opener))
	return c
}

func waitDone(t *testing.T, c *Consumer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

func TestConsumer_ChunksThenComplete(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	src := opener.source("c1")
	ctx := context.Background()

	require.NoError(t, src.send(ctx, `{"type":"chunk","content":"Hel"}`))
	require.NoError(t, src.send(ctx, `{"type":"chunk","content":"lo"}`))
	assert.Equal(t, StateStreaming, c.State())
	require.NoError(t, src.send(ctx, `{"type":"complete"}`))

	require.NoError(t, waitDone(t, c))
	assert.Equal(t, StateTerminated, c.State())

	entries := c.Transcript().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Hello", entries[0].Text())
	assert.Equal(t, []string{"Hel", "lo"}, rec.chunks)
	assert.Equal(t, 1, rec.completes)
	assert.Empty(t, rec.errs)

	select {
	case <-src.closed:
	case <-time.After(time.Second):
		t.Fatal("source was not closed after completion")
	}
}

func TestConsumer_MalformedFrameIsSkipped(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	src := opener.source("c1")
	ctx := context.Background()

	require.NoError(t, src.send(ctx, `{"type":`))
	require.NoError(t, src.send(ctx, `{"type":"usage"}`))
	assert.Equal(t, StateStreaming, c.State())
	require.NoError(t, src.send(ctx, `{"type":"chunk","content":"ok"}`))
	require.NoError(t, src.send(ctx, `{"type":"complete"}`))

	require.NoError(t, waitDone(t, c))
	assert.Equal(t, "ok", c.Transcript().Entries()[0].Text())
	assert.Equal(t, 1, rec.completes)
}

func TestConsumer_ServerErrorKeepsPartialText(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	src := opener.source("c1")
	ctx := context.Background()

	require.NoError(t, src.send(ctx, `{"type":"chunk","content":"partial"}`))
	require.NoError(t, src.send(ctx, `{"type":"error","error":"model overloaded"}`))

	err := waitDone(t, c)
	var serr *StreamError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "model overloaded", serr.Message)
	assert.Equal(t, "c1", serr.ConversationID)

	assert.Equal(t, "partial", c.Transcript().Entries()[0].Text())
	require.Len(t, rec.errs, 1)
	assert.Equal(t, 1, rec.completes, "errors run the same completion path")
}

func TestConsumer_TransportDropIsError(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	src := opener.source("c1")

	src.fail <- errors.New("connection reset")

	err := waitDone(t, c)
	var serr *StreamError
	require.True(t, errors.As(err, &serr))
	assert.Empty(t, serr.Message)
	assert.EqualError(t, serr.Err, "connection reset")
	assert.Equal(t, 1, rec.completes)
}

func TestConsumer_EOFBeforeCompleteIsError(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	close(opener.source("c1").frames)

	err := waitDone(t, c)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, rec.errs, 1)
}

func TestConsumer_OpenFailure(t *testing.T) {
	opener := newFakeOpener()
	opener.err = errors.New("dial refused")
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)

	err := waitDone(t, c)
	var serr *StreamError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 1, rec.completes)
}

func TestConsumer_CloseStopsProcessing(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := startConsumer(t, opener, "c1", rec)
	src := opener.source("c1")

	require.NoError(t, src.send(context.Background(), `{"type":"chunk","content":"a"}`))
	require.Eventually(t, func() bool { return c.Transcript().Len() == 1 }, time.Second, 5*time.Millisecond)
	c.Close()

	assert.Equal(t, StateTerminated, c.State())
	assert.ErrorIs(t, waitDone(t, c), ErrClosed)

	sendCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, src.send(sendCtx, `{"type":"chunk","content":"b"}`))
	assert.Equal(t, "a", c.Transcript().Entries()[0].Text())
	assert.Zero(t, rec.completes, "explicit close does not notify")

	c.Close()
}

func TestConsumer_StartTwice(t *testing.T) {
	opener := newFakeOpener()
	c := startConsumer(t, opener, "c1", &recorder{})
	assert.Error(t, c.Start(context.Background(), opener))
	c.Close()
}

func TestConsumer_ParentCancelIsQuiet(t *testing.T) {
	opener := newFakeOpener()
	rec := &recorder{}
	c := NewConsumer("c1", nil, rec.handlers(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx, opener))
	cancel()

	<-c.Done()
	assert.Zero(t, rec.completes)
	assert.Empty(t, rec.errs)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
