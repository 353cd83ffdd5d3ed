package clienthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sheerbytes/chunkchat/internal/upload"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// ErrServer is wrapped by every error the server reported, either through a
// non-2xx status or a non-zero envelope code.
var ErrServer = errors.New("server error")

const (
	StreamSSE       = "sse"
	StreamWebSocket = "ws"

	defaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// Options configures a Client.
type Options struct {
	// HTTPClient carries every request. It must not set a Timeout because
	// event streams stay open; per-request timeouts come from Timeout.
	HTTPClient      *http.Client
	Timeout         time.Duration
	StreamTransport string
	Logger          *slog.Logger
}

// Client talks to the upload and chat endpoints of a server.
type Client struct {
	baseURL         string
	http            *http.Client
	timeout         time.Duration
	streamTransport string
	logger          *slog.Logger
}

// New creates a client for serverURL. A missing scheme defaults to http.
func New(serverURL string, opts Options) (*Client, error) {
	base := strings.TrimRight(serverURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch opts.StreamTransport {
	case "":
		opts.StreamTransport = StreamSSE
	case StreamSSE, StreamWebSocket:
	default:
		return nil, fmt.Errorf("unknown stream transport %q", opts.StreamTransport)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:         base,
		http:            opts.HTTPClient,
		timeout:         opts.Timeout,
		streamTransport: opts.StreamTransport,
		logger:          opts.Logger,
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckFile calls GET /file/check.
func (c *Client) CheckFile(ctx context.Context, req upload.CheckRequest) (protocol.CheckFileResponse, error) {
	q := url.Values{}
	q.Set("fileId", req.FileID)
	q.Set("fileName", req.FileName)
	q.Set("fileSize", strconv.FormatInt(req.FileSize, 10))
	q.Set("sessionId", req.SessionID)

	var out protocol.CheckFileResponse
	if err := c.do(ctx, http.MethodGet, "/file/check?"+q.Encode(), nil, "", &out); err != nil {
		return protocol.CheckFileResponse{}, err
	}
	return out, nil
}

// UploadChunk calls POST /file/chunk with a multipart body.
func (c *Client) UploadChunk(ctx context.Context, req upload.ChunkRequest) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{protocol.FieldFileID, req.FileID},
		{protocol.FieldFileName, req.FileName},
		{protocol.FieldIndex, strconv.Itoa(req.Index)},
		{protocol.FieldChunkHash, req.Checksum},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	part, err := mw.CreateFormFile(protocol.FieldChunk, fmt.Sprintf("%s.part%d", req.FileName, req.Index))
	if err != nil {
		return fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := part.Write(req.Data); err != nil {
		return fmt.Errorf("write chunk part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	return c.doWith(ctx, http.MethodPost, "/file/chunk", &body, mw.FormDataContentType(), nil, func(r *http.Request) {
		r.Header.Set(protocol.HeaderChunkHashAlg, string(req.ChecksumAlg))
	})
}

// MergeChunks calls POST /file/merge.
func (c *Client) MergeChunks(ctx context.Context, req protocol.MergeRequest) (protocol.MergeResponse, error) {
	var out protocol.MergeResponse
	if err := c.postJSON(ctx, "/file/merge", req, &out); err != nil {
		return protocol.MergeResponse{}, err
	}
	return out, nil
}

// SendMessage calls POST /chat/send, which makes the server start producing
// events on the conversation's stream.
func (c *Client) SendMessage(ctx context.Context, req protocol.SendMessageRequest) error {
	return c.postJSON(ctx, "/chat/send", req, nil)
}

// CreateConversation calls POST /chat/conversations.
func (c *Client) CreateConversation(ctx context.Context, title string) (protocol.Conversation, error) {
	var out protocol.Conversation
	if err := c.postJSON(ctx, "/chat/conversations", protocol.CreateConversationRequest{Title: title}, &out); err != nil {
		return protocol.Conversation{}, err
	}
	if out.ID == "" {
		return protocol.Conversation{}, fmt.Errorf("%w: empty conversation id", ErrServer)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	return c.doWith(ctx, method, path, body, contentType, out, nil)
}

func (c *Client) doWith(ctx context.Context, method, path string, body io.Reader, contentType string, out any, edit func(*http.Request)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(protocol.HeaderRequestID, uuid.NewString())
	if edit != nil {
		edit(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: server returned %d: %s", ErrServer, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if !env.OK() {
		return fmt.Errorf("%w: code %d: %s", ErrServer, env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	if err := env.DecodeData(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
