package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sheerbytes/chunkchat/internal/attach"
	"github.com/sheerbytes/chunkchat/internal/session"
	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

const (
	maxChunkBody   = 64 << 20
	maxJSONBody    = 1 << 20
	multipartMem   = 32 << 20
	cleanupEvery   = time.Minute
	filesRoute     = "/files"
	defaultFileTTL = 2 * time.Hour
)

// Options configures a Server.
type Options struct {
	DataDir   string
	PublicURL string
	UploadTTL time.Duration
	Responder Responder
	Logger    *slog.Logger
}

// Server is a reference implementation of the upload and chat endpoints.
// It stores chunks on disk, keeps conversations in memory and streams
// replies from a Responder over SSE or WebSocket.
type Server struct {
	store     *session.Store
	convs     *Conversations
	hub       *Hub
	responder Responder
	publicURL string
	logger    *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stop    chan struct{}
	stopped sync.Once
}

// New creates a server and starts expiring stale partial uploads.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UploadTTL <= 0 {
		opts.UploadTTL = defaultFileTTL
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	store, err := session.NewStore(opts.DataDir, opts.UploadTTL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:     store,
		convs:     NewConversations(),
		hub:       NewHub(),
		responder: opts.Responder,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
	}
	go store.RunCleanup(cleanupEvery, s.stop, func(n int) {
		s.logger.Info("expired partial uploads", "count", n)
	})
	return s, nil
}

// Close stops running responders and the cleanup loop.
func (s *Server) Close() {
	s.stopped.Do(func() {
		close(s.stop)
		s.cancel()
	})
	s.wg.Wait()
}

// Store exposes the chunk store.
func (s *Server) Store() *session.Store {
	return s.store
}

// Conversations exposes the conversation store.
func (s *Server) Conversations() *Conversations {
	return s.convs
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]bool{"ok": true})
	})

	r.Route("/file", func(r chi.Router) {
		r.Get("/check", s.handleCheck)
		r.Post("/chunk", s.handleChunk)
		r.Post("/merge", s.handleMerge)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Post("/send", s.handleSend)
		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWS)
	})

	files := http.StripPrefix(filesRoute+"/", http.FileServer(http.Dir(s.store.FilesDir())))
	r.Get(filesRoute+"/*", files.ServeHTTP)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if r.URL.Path == "/health" {
				return
			}
			s.logger.Debug("http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fileID := q.Get("fileId")
	if fileID == "" {
		sendError(w, http.StatusBadRequest, "missing fileId")
		return
	}
	size, err := strconv.ParseInt(q.Get("fileSize"), 10, 64)
	if err != nil || size < 0 {
		sendError(w, http.StatusBadRequest, "invalid fileSize")
		return
	}

	st, err := s.store.Check(fileID, q.Get("fileName"), size)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := protocol.CheckFileResponse{IsCompleted: st.Completed, Uploaded: st.Uploaded}
	if st.Completed {
		resp.FilePath = s.filePath(st.FilePath)
	}
	s.logger.Debug("upload check", "file_id", fileID, "completed", st.Completed, "uploaded", len(st.Uploaded), "session_id", q.Get("sessionId"))
	writeData(w, resp)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChunkBody)
	if err := r.ParseMultipartForm(multipartMem); err != nil {
		sendError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	fileID := r.FormValue(protocol.FieldFileID)
	fileName := r.FormValue(protocol.FieldFileName)
	index, err := strconv.Atoi(r.FormValue(protocol.FieldIndex))
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid index")
		return
	}
	part, _, err := r.FormFile(protocol.FieldChunk)
	if err != nil {
		sendError(w, http.StatusBadRequest, "missing chunk")
		return
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		sendError(w, http.StatusBadRequest, "read chunk")
		return
	}

	alg, err := transfer.ParseChecksumAlg(r.Header.Get(protocol.HeaderChunkHashAlg))
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sum := r.FormValue(protocol.FieldChunkHash); sum != "" {
		if err := transfer.VerifyChecksum(alg, data, sum); err != nil {
			s.logger.Warn("chunk checksum mismatch", "file_id", fileID, "index", index, "alg", alg)
			sendError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	if err := s.store.PutChunk(fileID, fileName, index, data); err != nil {
		if errors.Is(err, session.ErrInvalidFileID) || errors.Is(err, session.ErrInvalidIndex) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("store chunk failed", "file_id", fileID, "index", index, "error", err)
		sendError(w, http.StatusInternalServerError, "store chunk")
		return
	}
	writeData(w, map[string]int{"index": index})
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req protocol.MergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	rel, err := s.store.Merge(req.FileID, req.FileName, req.TotalChunks)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrMissingChunks), errors.Is(err, session.ErrUnknownUpload),
		errors.Is(err, session.ErrDigestMismatch):
		sendError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrInvalidFileID), errors.Is(err, session.ErrInvalidIndex):
		sendError(w, http.StatusBadRequest, err.Error())
		return
	default:
		s.logger.Error("merge failed", "file_id", req.FileID, "error", err)
		sendError(w, http.StatusInternalServerError, "merge failed")
		return
	}

	s.logger.Info("merged upload", "file_id", req.FileID, "file_name", req.FileName, "chunks", req.TotalChunks)
	writeData(w, protocol.MergeResponse{FileName: req.FileName, FilePath: s.filePath(rel)})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	conv := s.convs.Create(req.Title)
	s.logger.Info("conversation created", "conversation_id", conv.ID)
	writeData(w, protocol.Conversation{ID: conv.ID, Title: conv.Title})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.convs.List())
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.convs.Get(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "unknown conversation")
		return
	}
	writeData(w, conv)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Message == "" && req.FileID == "" {
		sendError(w, http.StatusBadRequest, "empty message")
		return
	}
	if !s.convs.Append(req.ConversationID, Message{Role: protocol.RoleUser, Text: req.Message, FileID: req.FileID}) {
		sendError(w, http.StatusNotFound, "unknown conversation")
		return
	}

	prompt := Prompt{ConversationID: req.ConversationID, Message: req.Message, FileID: req.FileID}
	if req.FileID != "" {
		if rel, ok := s.store.Lookup(req.FileID); ok {
			prompt.FilePath = s.filePath(rel)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.respond(prompt)
	}()
	writeData(w, map[string]bool{"accepted": true})
}

// respond runs the responder and records the assistant reply.
func (s *Server) respond(p Prompt) {
	var reply strings.Builder
	s.responder.Respond(s.ctx, p, func(ev protocol.StreamEvent) {
		if ev.Type == protocol.EventChunk {
			reply.WriteString(ev.Content)
		}
		s.hub.Publish(p.ConversationID, ev)
	})
	if reply.Len() > 0 {
		s.convs.Append(p.ConversationID, Message{Role: protocol.RoleAssistant, Text: reply.String()})
	}
}

// filePath maps a path under the files root to the path clients see.
func (s *Server) filePath(rel string) string {
	return attach.ResolveURL(s.publicURL, filesRoute+"/"+rel)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeData(w http.ResponseWriter, data any) {
	env, err := protocol.NewEnvelope(data)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(env)
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.NewErrorEnvelope(code, message))
}
