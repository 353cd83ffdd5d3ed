package chat

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/chunkchat/internal/clienthttp"
	"github.com/sheerbytes/chunkchat/internal/devserver"
	"github.com/sheerbytes/chunkchat/internal/logging"
	"github.com/sheerbytes/chunkchat/internal/progress"
	"github.com/sheerbytes/chunkchat/internal/stream"
	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/internal/upload"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

type env struct {
	server *devserver.Server
	ts     *httptest.Server
	client *clienthttp.Client
}

func newEnv(t *testing.T, responder devserver.Responder, transport string) env {
	t.Helper()
	s, err := devserver.New(devserver.Options{
		DataDir:   t.TempDir(),
		Responder: responder,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})

	c, err := clienthttp.New(ts.URL, clienthttp.Options{
		Logger:          logging.Discard(),
		Timeout:         5 * time.Second,
		StreamTransport: transport,
	})
	require.NoError(t, err)
	return env{server: s, ts: ts, client: c}
}

func newChat(e env) *Chat {
	return New(e.client, Options{
		Upload:    upload.Options{ChunkSize: 4, Concurrency: 2, MaxAttempts: 2},
		PublicURL: e.ts.URL,
	}, logging.Discard())
}

func wait(t *testing.T, c *stream.Consumer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Wait(ctx)
}

func fingerprint(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestSubmit_CreatesConversationAndStreamsReply(t *testing.T) {
	for _, transport := range []string{clienthttp.StreamSSE, clienthttp.StreamWebSocket} {
		t.Run(transport, func(t *testing.T) {
			e := newEnv(t, nil, transport)
			c := newChat(e)
			defer c.Close()

			var chunks []string
			consumer, err := c.Submit(context.Background(), "hello there", stream.Handlers{
				OnChunk: func(text string) { chunks = append(chunks, text) },
			})
			require.NoError(t, err)
			require.NoError(t, wait(t, consumer))

			id := c.Conversation()
			require.NotEmpty(t, id)
			conv, ok := e.server.Conversations().Get(id)
			require.True(t, ok)
			assert.Equal(t, "hello there", conv.Title)

			entries := c.Transcript(id).Entries()
			require.Len(t, entries, 2)
			assert.Equal(t, protocol.RoleUser, entries[0].Role)
			assert.Equal(t, "hello there", entries[0].Text())
			assert.Equal(t, protocol.RoleAssistant, entries[1].Role)
			assert.Equal(t, "You said: hello there", entries[1].Text())
			assert.Greater(t, len(chunks), 1, "reply arrives in several chunks")
		})
	}
}

func TestSubmit_Empty(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := newChat(e)

	_, err := c.Submit(context.Background(), "", stream.Handlers{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, c.Conversation())
}

func TestSubmit_ImageAttachment(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := newChat(e)
	defer c.Close()

	data := []byte("not really a png but eleven chunks")
	fp := fingerprint(data)
	out, err := c.Attach(context.Background(), transfer.NewMemFile("cat.PNG", data), upload.Hooks{})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.False(t, out.Instant)

	att, ok := c.Attachment()
	require.True(t, ok)
	assert.Equal(t, fp, att.FileID)
	assert.Equal(t, "/files/"+fp+".png", att.FilePath)

	consumer, err := c.Submit(context.Background(), "look", stream.Handlers{})
	require.NoError(t, err)
	require.NoError(t, wait(t, consumer))

	entries := c.Transcript(c.Conversation()).Entries()
	require.Len(t, entries, 3)
	require.Len(t, entries[0].Content, 1)
	assert.Equal(t, protocol.ContentImage, entries[0].Content[0].Kind)
	assert.Equal(t, e.ts.URL+"/files/"+fp+".png", entries[0].Content[0].Text)
	assert.Equal(t, "look", entries[1].Text())
	assert.Equal(t, "Received attachment /files/"+fp+".png. You said: look", entries[2].Text())

	_, ok = c.Attachment()
	assert.False(t, ok, "attachment is consumed by the send")
	_, ok = c.UploadSession()
	assert.False(t, ok)
}

func TestSubmit_FileAttachmentOnly(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := newChat(e)
	defer c.Close()

	data := []byte("quarterly numbers")
	_, err := c.Attach(context.Background(), transfer.NewMemFile("report.csv", data), upload.Hooks{})
	require.NoError(t, err)

	consumer, err := c.Submit(context.Background(), "", stream.Handlers{})
	require.NoError(t, err)
	require.NoError(t, wait(t, consumer))

	conv, ok := e.server.Conversations().Get(c.Conversation())
	require.True(t, ok)
	assert.Equal(t, "attachment", conv.Title)
	require.NotEmpty(t, conv.Messages)
	assert.Equal(t, fingerprint(data), conv.Messages[0].FileID)

	entries := c.Transcript(c.Conversation()).Entries()
	require.Len(t, entries, 2)
	item := entries[0].Content[0]
	assert.Equal(t, protocol.ContentFile, item.Kind)
	assert.Equal(t, fingerprint(data), item.FileID)
	assert.Equal(t, "report.csv", item.Name)
}

func TestAttach_SecondUploadIsInstant(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := newChat(e)
	data := []byte("same bytes twice")

	first, err := c.Attach(context.Background(), transfer.NewMemFile("a.txt", data), upload.Hooks{})
	require.NoError(t, err)
	assert.False(t, first.Instant)

	second, err := c.Attach(context.Background(), transfer.NewMemFile("b.txt", data), upload.Hooks{})
	require.NoError(t, err)
	assert.True(t, second.Instant)
	assert.Equal(t, first.FilePath, second.FilePath)
}

func TestSelectConversation_ClosesStreamAndDropsUpload(t *testing.T) {
	slow := devserver.EchoResponder{Delay: time.Hour}
	e := newEnv(t, slow, clienthttp.StreamSSE)
	c := newChat(e)
	defer c.Close()

	consumer, err := c.Submit(context.Background(), "never answered", stream.Handlers{})
	require.NoError(t, err)
	first := c.Conversation()

	_, err = c.Attach(context.Background(), transfer.NewMemFile("x.txt", []byte("abc")), upload.Hooks{})
	require.NoError(t, err)
	_, ok := c.Attachment()
	require.True(t, ok)

	c.SelectConversation("other")

	assert.Equal(t, stream.StateTerminated, consumer.State())
	assert.ErrorIs(t, wait(t, consumer), stream.ErrClosed)
	assert.Equal(t, "other", c.Conversation())
	_, ok = c.Attachment()
	assert.False(t, ok)
	_, ok = c.UploadSession()
	assert.False(t, ok)

	// The previous transcript is kept per conversation.
	assert.Equal(t, 1, c.Transcript(first).Len())
	assert.Equal(t, 0, c.Transcript("other").Len())
}

type failingSend struct {
	*clienthttp.Client
}

func (failingSend) SendMessage(context.Context, protocol.SendMessageRequest) error {
	return errors.New("boom")
}

func TestSubmit_SendFailureClosesStream(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := New(failingSend{e.client}, Options{}, logging.Discard())
	defer c.Close()

	_, err := c.Submit(context.Background(), "hi", stream.Handlers{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send message")
	assert.NotEmpty(t, c.Conversation())
	assert.Nil(t, c.streams.Current())
}

func TestCompose(t *testing.T) {
	img := &Attachment{FileID: "f1", Name: "a.jpeg", FilePath: "/files/f1.jpeg"}
	doc := &Attachment{FileID: "f2", Name: "b.pdf", FilePath: "/files/f2.pdf"}

	entries := compose("", img, "https://cdn.example.com")
	require.Len(t, entries, 1)
	assert.Equal(t, stream.ImageItem("https://cdn.example.com/files/f1.jpeg"), entries[0].Content[0])

	entries = compose("text", doc, "")
	require.Len(t, entries, 2)
	assert.Equal(t, stream.FileItem("f2", "b.pdf"), entries[0].Content[0])
	assert.Equal(t, "text", entries[1].Text())

	assert.Empty(t, compose("", nil, ""))
}

type blockingMerge struct {
	*clienthttp.Client
	started chan struct{}
	release chan struct{}
}

// MergeChunks finishes even if the caller gives up, like a server that
// already began assembling the file.
func (b blockingMerge) MergeChunks(_ context.Context, req protocol.MergeRequest) (protocol.MergeResponse, error) {
	close(b.started)
	<-b.release
	return b.Client.MergeChunks(context.Background(), req)
}

func TestAttach_SwitchDuringMergeKeepsNoAttachment(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	backend := blockingMerge{Client: e.client, started: make(chan struct{}), release: make(chan struct{})}
	c := New(backend, Options{Upload: upload.Options{ChunkSize: 4}}, logging.Discard())
	defer c.Close()
	c.SelectConversation("A")

	type result struct {
		out upload.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Attach(context.Background(), transfer.NewMemFile("a.bin", []byte("0123456789")), upload.Hooks{})
		done <- result{out, err}
	}()

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("merge was never requested")
	}
	c.SelectConversation("B")
	close(backend.release)

	res := <-done
	assert.ErrorIs(t, res.err, upload.ErrCancelled)
	assert.False(t, res.out.Success)
	assert.Equal(t, "B", c.Conversation())
	_, ok := c.Attachment()
	assert.False(t, ok, "an upload started in A must not attach to B")
}

func TestAttach_SwitchAfterUploadFinishedKeepsNoAttachment(t *testing.T) {
	e := newEnv(t, nil, clienthttp.StreamSSE)
	c := newChat(e)
	defer c.Close()
	c.SelectConversation("A")

	out, err := c.Attach(context.Background(), transfer.NewMemFile("a.bin", []byte("0123456789")), upload.Hooks{
		OnPhase: func(p progress.Phase) {
			if p == progress.PhaseDone {
				c.SelectConversation("B")
			}
		},
	})
	assert.ErrorIs(t, err, upload.ErrCancelled)
	assert.False(t, out.Success)
	_, ok := c.Attachment()
	assert.False(t, ok)
}
