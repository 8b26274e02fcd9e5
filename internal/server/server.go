// Package server exposes the HTTP API. Routing and field extraction live
// here; conversation semantics stay in the agent.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mtessier/visiochat/internal/agent"
	"github.com/mtessier/visiochat/internal/attachment"
	"github.com/mtessier/visiochat/internal/session"
)

// maxAttachmentBytes caps the multipart form held in memory.
const maxAttachmentBytes = 32 << 20

type turnResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server handles the gateway's HTTP surface.
type Server struct {
	agent  *agent.Agent
	logger zerolog.Logger
}

// New creates a Server around an agent.
func New(a *agent.Agent, logger zerolog.Logger) *Server {
	return &Server{agent: a, logger: logger}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process", s.handleProcess)
	mux.HandleFunc("GET /api/query", s.handleQuery)
	mux.HandleFunc("/api/history", s.handleHistory)
	return mux
}

// handleProcess accepts a multipart turn: prompt (required), user_id
// (optional, a new conversation is created or assigned when absent), and
// an optional image file.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	req := agent.TurnRequest{
		ConversationID: r.FormValue("user_id"),
		Prompt:         r.FormValue("prompt"),
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		payload, readErr := io.ReadAll(file)
		if readErr != nil {
			s.writeError(w, http.StatusBadRequest, readErr)
			return
		}
		req.Attachment = payload
		req.MediaType = attachmentMediaType(header)
	case errors.Is(err, http.ErrMissingFile):
		// Text-only turn.
	default:
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.submit(w, r, req)
}

// handleQuery accepts a text-only turn against an existing conversation:
// user_id and prompt are both required query parameters, and an unknown
// user_id is an error rather than a new conversation.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, agent.TurnRequest{
		ConversationID: r.URL.Query().Get("user_id"),
		Prompt:         r.URL.Query().Get("prompt"),
		Strict:         true,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("user_id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, &agent.MissingFieldError{Field: "user_id"})
		return
	}

	if r.Method == http.MethodDelete {
		s.agent.Clear(id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	turns, err := s.agent.History(id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, turns)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req agent.TurnRequest) {
	result, err := s.agent.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, turnResponse{
		Reply:          result.Reply,
		ConversationID: result.ConversationID,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// attachmentMediaType resolves the uploaded part's media type, falling
// back to the filename extension when the part carries no Content-Type
// header, then to application/octet-stream.
func attachmentMediaType(header *multipart.FileHeader) string {
	if mt := header.Header.Get("Content-Type"); mt != "" {
		return mt
	}
	if mt := mime.TypeByExtension(filepath.Ext(header.Filename)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// statusFor maps the agent's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var missing *agent.MissingFieldError
	switch {
	case errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, attachment.ErrStagingFailed):
		return http.StatusInternalServerError
	case errors.Is(err, agent.ErrAssetPublishFailed), errors.Is(err, agent.ErrCompletionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
