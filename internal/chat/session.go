package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/flowchat/internal/api/langflow"
	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/transcript"
)

// Session owns one conversation: its transcript and the busy flag that keeps
// at most one request in flight.
type Session struct {
	ID        string
	CreatedAt time.Time

	transcript *transcript.Transcript
	busy       atomic.Bool

	holder     *config.Holder
	dispatcher *Dispatcher
	grace      time.Duration
	logger     *slog.Logger
}

// NewSession creates a session reading configuration from holder. grace bounds
// the single wait for a late overlay when the endpoint is not yet configured.
func NewSession(id string, holder *config.Holder, dispatcher *Dispatcher, grace time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		transcript: transcript.New(),
		holder:     holder,
		dispatcher: dispatcher,
		grace:      grace,
		logger:     logger.With(slog.String("session_id", id)),
	}
}

// Send trims message and dispatches it. It returns ErrEmptyMessage for blank
// input and ErrBusy while another Send on this session is outstanding.
func (s *Session) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	if !s.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.busy.Store(false)

	cfg := s.currentConfig(ctx)
	return s.dispatcher.Send(ctx, message, cfg, s.transcript)
}

// currentConfig returns the configuration to dispatch with. If no endpoint
// resolves and the overlay has not finished loading, it waits once, bounded
// by the grace period, and re-reads.
func (s *Session) currentConfig(ctx context.Context) config.Langflow {
	cfg := s.holder.Current()
	if _, ok := langflow.ResolveEndpoint(cfg); ok || s.holder.IsReady() {
		return cfg
	}

	s.logger.DebugContext(ctx, "endpoint not configured yet, waiting for overlay",
		slog.Duration("grace", s.grace))
	return s.holder.WaitReady(ctx, s.grace)
}

// Busy reports whether a request is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Transcript returns the turns recorded so far.
func (s *Session) Transcript() []transcript.Turn {
	return s.transcript.Snapshot()
}
