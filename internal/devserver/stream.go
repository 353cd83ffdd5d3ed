package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheerbytes/chunkchat/internal/sse"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

const (
	keepAlive = 15 * time.Second
	wsWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dev server, any origin
	},
}

// terminal reports whether ev ends a reply.
func terminal(ev protocol.StreamEvent) bool {
	return ev.Type == protocol.EventComplete || ev.Type == protocol.EventError
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if _, ok := s.convs.Get(id); !ok {
		sendError(w, http.StatusNotFound, "unknown conversation")
		return
	}
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream not flushable", "error", err)
		return
	}

	events, remove := s.hub.Subscribe(id)
	defer remove()
	s.logger.Debug("stream opened", "conversation_id", id, "transport", "sse")

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment(w, "keep-alive"); err != nil {
				return
			}
			rc.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := protocol.EncodeStreamEvent(ev)
			if err != nil {
				s.logger.Error("encode stream event", "error", err)
				return
			}
			if err := sse.WriteEvent(w, sse.Event{Data: string(data)}); err != nil {
				return
			}
			rc.Flush()
			if terminal(ev) {
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if _, ok := s.convs.Get(id); !ok {
		sendError(w, http.StatusNotFound, "unknown conversation")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, remove := s.hub.Subscribe(id)
	defer remove()
	s.logger.Debug("stream opened", "conversation_id", id, "transport", "ws")

	// Reading is required to process close and ping frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var writeMu sync.Mutex
	write := func(kind int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWait))
		return conn.WriteMessage(kind, data)
	}
	closeNormal := func() {
		writeMu.Lock()
		defer writeMu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWait))
	}

	for {
		select {
		case <-gone:
			return
		case <-s.ctx.Done():
			closeNormal()
			return
		case ev, ok := <-events:
			if !ok {
				closeNormal()
				return
			}
			data, err := protocol.EncodeStreamEvent(ev)
			if err != nil {
				s.logger.Error("encode stream event", "error", err)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
			if terminal(ev) {
				closeNormal()
				// Give the peer a moment to answer the close frame.
				select {
				case <-gone:
				case <-time.After(time.Second):
				}
				return
			}
		}
	}
}
