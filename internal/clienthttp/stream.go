package clienthttp

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/sheerbytes/chunkchat/internal/sse"
	"github.com/sheerbytes/chunkchat/internal/stream"
	"github.com/sheerbytes/chunkchat/internal/wsclient"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// OpenStream opens the event stream of a conversation over SSE or WebSocket,
// depending on the client's stream transport.
func (c *Client) OpenStream(ctx context.Context, conversationID string) (stream.Source, error) {
	q := url.Values{}
	q.Set("id", conversationID)
	if c.streamTransport == StreamWebSocket {
		headers := http.Header{}
		headers.Set(protocol.HeaderRequestID, uuid.NewString())
		conn, err := wsclient.Dial(ctx, c.baseURL+"/chat/ws?"+q.Encode(), headers, c.logger)
		if err != nil {
			return nil, fmt.Errorf("open websocket stream: %w", err)
		}
		return conn, nil
	}
	return c.openSSE(ctx, "/chat/sse?"+q.Encode())
}

func (c *Client) openSSE(ctx context.Context, path string) (*sse.Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(protocol.HeaderRequestID, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return nil, fmt.Errorf("%w: server returned %d: %s", ErrServer, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected content type %q", ErrServer, mediaType)
	}
	return sse.NewConn(resp.Body, c.logger), nil
}
