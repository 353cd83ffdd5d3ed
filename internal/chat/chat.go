package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sheerbytes/chunkchat/internal/attach"
	"github.com/sheerbytes/chunkchat/internal/stream"
	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/internal/upload"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

var ErrEmptyMessage = errors.New("message has no text and no attachment")

const attachmentTitle = "attachment"

// Backend is everything a conversation needs from the server.
type Backend interface {
	upload.Transport
	stream.Opener
	SendMessage(ctx context.Context, req protocol.SendMessageRequest) error
	CreateConversation(ctx context.Context, title string) (protocol.Conversation, error)
}

// Attachment is an uploaded file waiting to be sent with the next message.
type Attachment struct {
	FileID   string
	Name     string
	FilePath string
}

// Options configures a Chat.
type Options struct {
	Upload upload.Options
	// PublicURL prefixes server file paths when building image links.
	PublicURL string
}

// Chat binds one uploader and one stream manager to the selected conversation.
type Chat struct {
	backend   Backend
	uploader  *upload.Uploader
	streams   *stream.Manager
	publicURL string
	logger    *slog.Logger

	mu           sync.Mutex
	conversation string
	transcripts  map[string]*stream.Transcript
	attachment   *Attachment

	// epoch changes whenever the selected conversation does.
	epoch uint64
}

// New creates a chat with no conversation selected.
func New(backend Backend, opts Options, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{
		backend:     backend,
		uploader:    upload.NewUploader(backend, opts.Upload, logger),
		streams:     stream.NewManager(backend, logger),
		publicURL:   opts.PublicURL,
		logger:      logger,
		transcripts: make(map[string]*stream.Transcript),
	}
}

// Conversation returns the selected conversation id, empty when none.
func (c *Chat) Conversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// SelectConversation switches context to id. The upload session and any live
// stream of the previous conversation are dropped first.
func (c *Chat) SelectConversation(id string) {
	c.mu.Lock()
	prev := c.conversation
	c.mu.Unlock()
	if prev == id {
		return
	}

	c.uploader.Reset()
	c.streams.Close()

	c.mu.Lock()
	c.conversation = id
	c.epoch++
	c.attachment = nil
	c.mu.Unlock()
	c.logger.Debug("conversation selected", "conversation_id", id, "previous", prev)
}

// Transcript returns the transcript of conversation id, creating it if needed.
func (c *Chat) Transcript(id string) *stream.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked(id)
}

func (c *Chat) transcriptLocked(id string) *stream.Transcript {
	t, ok := c.transcripts[id]
	if !ok {
		t = stream.NewTranscript()
		c.transcripts[id] = t
	}
	return t
}

// Attach uploads file as the attachment of the next message. The file is
// only kept if the conversation selected when the upload started is still
// selected when it finishes.
func (c *Chat) Attach(ctx context.Context, file transfer.File, hooks upload.Hooks) (upload.Outcome, error) {
	c.mu.Lock()
	c.attachment = nil
	epoch := c.epoch
	c.mu.Unlock()

	out, err := c.uploader.Select(ctx, file, hooks)
	return c.keepAttachment(epoch, out, err)
}

// RetryAttachment retries the failed or cancelled attachment upload.
func (c *Chat) RetryAttachment(ctx context.Context, hooks upload.Hooks) (upload.Outcome, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	out, err := c.uploader.Retry(ctx, hooks)
	return c.keepAttachment(epoch, out, err)
}

// CancelAttachment stops the running attachment upload. Confirmed chunks
// remain on the server for a later retry.
func (c *Chat) CancelAttachment() {
	c.uploader.Cancel()
}

// DropAttachment forgets the attachment and its upload session.
func (c *Chat) DropAttachment() {
	c.uploader.Reset()
	c.mu.Lock()
	c.attachment = nil
	c.mu.Unlock()
}

// Attachment returns the uploaded attachment pending send.
func (c *Chat) Attachment() (Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachment == nil {
		return Attachment{}, false
	}
	return *c.attachment, true
}

// UploadSession returns the current upload session snapshot.
func (c *Chat) UploadSession() (upload.Session, bool) {
	return c.uploader.Session()
}

func (c *Chat) keepAttachment(epoch uint64, out upload.Outcome, err error) (upload.Outcome, error) {
	if !out.Success {
		return out, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.logger.Debug("upload finished after conversation switch", "file_id", out.Fingerprint)
		return upload.Outcome{Fingerprint: out.Fingerprint, FileName: out.FileName, Cancelled: true, Percent: out.Percent}, upload.ErrCancelled
	}
	c.attachment = &Attachment{FileID: out.Fingerprint, Name: out.FileName, FilePath: out.FilePath}
	return out, err
}

// Submit sends text with the pending attachment, if any. A conversation is
// created when none is selected. The user entries are appended to the
// transcript and the reply stream is opened before the message is sent; the
// returned consumer delivers the reply into the same transcript.
func (c *Chat) Submit(ctx context.Context, text string, h stream.Handlers) (*stream.Consumer, error) {
	if c.uploader.Running() {
		return nil, upload.ErrUploadInProgress
	}

	c.mu.Lock()
	att := c.attachment
	convID := c.conversation
	c.mu.Unlock()
	if text == "" && att == nil {
		return nil, ErrEmptyMessage
	}

	if convID == "" {
		title := text
		if title == "" {
			title = attachmentTitle
		}
		conv, err := c.backend.CreateConversation(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
		c.mu.Lock()
		c.conversation = convID
		c.mu.Unlock()
		c.logger.Info("conversation created", "conversation_id", convID)
	}

	c.mu.Lock()
	transcript := c.transcriptLocked(convID)
	c.mu.Unlock()
	for _, e := range compose(text, att, c.publicURL) {
		transcript.Append(e)
	}

	consumer, err := c.streams.Open(ctx, convID, transcript, h)
	if err != nil {
		return nil, err
	}

	req := protocol.SendMessageRequest{ConversationID: convID, Message: text}
	if att != nil {
		req.FileID = att.FileID
	}
	if err := c.backend.SendMessage(ctx, req); err != nil {
		c.streams.CloseConversation(convID)
		return nil, fmt.Errorf("send message: %w", err)
	}

	if att != nil {
		c.mu.Lock()
		if c.attachment == att {
			c.attachment = nil
		}
		c.mu.Unlock()
		c.uploader.Reset()
	}
	return consumer, nil
}

// Close closes the live stream and cancels any running upload.
func (c *Chat) Close() {
	c.uploader.Cancel()
	c.streams.Close()
}

// compose builds the user entries for a message: the attachment entry first,
// then the text entry.
func compose(text string, att *Attachment, publicURL string) []stream.Entry {
	var out []stream.Entry
	if att != nil {
		var item stream.Item
		if attach.IsImage(att.Name) {
			item = stream.ImageItem(attach.ResolveURL(publicURL, att.FilePath))
		} else {
			item = stream.FileItem(att.FileID, att.Name)
		}
		out = append(out, stream.Entry{Role: protocol.RoleUser, Content: []stream.Item{item}})
	}
	if text != "" {
		out = append(out, stream.Entry{Role: protocol.RoleUser, Content: []stream.Item{stream.TextItem(text)}})
	}
	return out
}
