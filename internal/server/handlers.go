package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/flowchat/internal/api/langflow"
	"github.com/tjfontaine/flowchat/internal/chat"
	"github.com/tjfontaine/flowchat/internal/reply"
	"github.com/tjfontaine/flowchat/internal/transcript"
)

const maxMessageBody = 64 << 10

type configResponse struct {
	Configured     bool `json:"configured"`
	Ready          bool `json:"ready"`
	UseEmbedWidget bool `json:"use_embed_widget"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Reply    string `json:"reply"`
	Fallback bool   `json:"fallback"`
}

type transcriptResponse struct {
	SessionID string            `json:"session_id"`
	Turns     []transcript.Turn `json:"turns"`
	Tokens    int               `json:"tokens"`
	Busy      bool              `json:"busy"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Status int    `json:"upstream_status,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig reports whether an endpoint resolves. Secrets are never echoed.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.holder.Current()
	_, configured := langflow.ResolveEndpoint(cfg)
	writeJSON(w, http.StatusOK, configResponse{
		Configured:     configured,
		Ready:          s.holder.IsReady(),
		UseEmbedWidget: cfg.UseEmbedWidget,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.registry.Create()
	AddLogField(r.Context(), "session_id", sess.ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sess.ID})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	text, err := sess.Send(r.Context(), req.Message)
	if err != nil {
		s.writeSendError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Reply:    text,
		Fallback: reply.IsFallback(text),
	})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	turns := sess.Transcript()
	writeJSON(w, http.StatusOK, transcriptResponse{
		SessionID: sess.ID,
		Turns:     turns,
		Tokens:    s.counter.CountTurns(turns),
		Busy:      sess.Busy(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	AddLogField(r.Context(), "session_id", id)

	if err := s.registry.Delete(id); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	AddLogField(r.Context(), "session_id", id)

	sess, err := s.registry.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) writeSendError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	resp := errorResponse{Error: chat.UserMessage(err)}

	var chatErr *chat.Error
	if errors.As(err, &chatErr) {
		resp.Kind = string(chatErr.Kind)
		resp.Status = chatErr.StatusCode
		AddLogField(r.Context(), "error_kind", resp.Kind)
	}

	writeJSON(w, statusForError(err), resp)
}

// statusForError maps a Session.Send error to the status returned to the widget.
func statusForError(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict
	}

	switch chat.KindOf(err) {
	case chat.KindConfiguration:
		return http.StatusServiceUnavailable
	case chat.KindTimeout:
		return http.StatusGatewayTimeout
	case chat.KindCanceled:
		return http.StatusRequestTimeout
	case chat.KindHTTP, chat.KindMalformedResponse, chat.KindEmptyResponse, chat.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", slog.String("error", err.Error()))
	}
}
