package chat

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/flowchat/internal/config"
)

// Registry is an in-memory set of sessions keyed by id. Sessions are never
// persisted and disappear with the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	holder     *config.Holder
	dispatcher *Dispatcher
	grace      time.Duration
	logger     *slog.Logger
}

// NewRegistry creates a registry whose sessions share holder and dispatcher.
func NewRegistry(holder *config.Holder, dispatcher *Dispatcher, grace time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		holder:     holder,
		dispatcher: dispatcher,
		grace:      grace,
		logger:     logger,
	}
}

// Create starts a new session with a fresh id.
func (r *Registry) Create() *Session {
	s := NewSession(uuid.New().String(), r.holder, r.dispatcher, r.grace, r.logger)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Info("session created", slog.String("session_id", s.ID))
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	delete(r.sessions, id)
	r.logger.Info("session deleted", slog.String("session_id", id))
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
