// Package server exposes chat sessions over HTTP for a browser widget.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/flowchat/internal/chat"
	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/tokens"
)

const shutdownTimeout = 30 * time.Second

// Options wires a Server to the chat core.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Registry       *chat.Registry
	Holder         *config.Holder
	Counter        *tokens.Counter
}

type Server struct {
	Router *chi.Mux
	Addr   string
	logger *slog.Logger

	registry *chat.Registry
	holder   *config.Holder
	counter  *tokens.Counter
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := opts.Counter
	if counter == nil {
		counter = tokens.NewCounter()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "flowchat")
	})

	s := &Server{
		Router:   r,
		Addr:     opts.Addr,
		logger:   logger,
		registry: opts.Registry,
		holder:   opts.Holder,
		counter:  counter,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Get("/healthz", s.handleHealth)

	s.Router.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/messages", s.handleSendMessage)
			r.Get("/transcript", s.handleTranscript)
			r.Delete("/", s.handleDeleteSession)
		})
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
