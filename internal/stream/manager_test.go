package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/chunkchat/internal/logging"
)

func TestManager_OpenClosesPrevious(t *testing.T) {
	opener := newFakeOpener()
	m := NewManager(opener, logging.Discard())
	ctx := context.Background()

	first, err := m.Open(ctx, "c1", NewTranscript(), Handlers{})
	require.NoError(t, err)
	require.NoError(t, opener.source("c1").send(ctx, `{"type":"chunk","content":"one"}`))
	require.Eventually(t, func() bool { return first.Transcript().Len() == 1 }, time.Second, 5*time.Millisecond)

	second, err := m.Open(ctx, "c2", NewTranscript(), Handlers{})
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, first.State(), "the previous stream is closed before the new one opens")
	assert.Same(t, second, m.Current())

	sendCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, opener.source("c1").send(sendCtx, `{"type":"chunk","content":"late"}`))
	assert.Equal(t, "one", first.Transcript().Entries()[0].Text())

	require.NoError(t, opener.source("c2").send(ctx, `{"type":"complete"}`))
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, second.Wait(waitCtx))
}

func TestManager_CloseConversation(t *testing.T) {
	opener := newFakeOpener()
	m := NewManager(opener, logging.Discard())

	c, err := m.Open(context.Background(), "c1", nil, Handlers{})
	require.NoError(t, err)

	m.CloseConversation("other")
	assert.NotEqual(t, StateTerminated, c.State())

	m.CloseConversation("c1")
	assert.Equal(t, StateTerminated, c.State())
	assert.Nil(t, m.Current())

	m.Close()
}
