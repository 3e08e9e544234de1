// Package chat drives one Langflow round trip per user message and keeps the
// per-session state (transcript and busy gate) around it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/flowchat/internal/api/langflow"
	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/reply"
	"github.com/tjfontaine/flowchat/internal/transcript"
)

const tracerName = "github.com/tjfontaine/flowchat/internal/chat"

// Runner posts a run request and returns the raw response body.
// *langflow.Client satisfies it.
type Runner interface {
	Run(ctx context.Context, endpoint, apiKey string, req *langflow.RunRequest) ([]byte, error)
}

// Dispatcher sends a message to the configured flow and normalizes the reply.
// It is not reentrant per transcript; Session enforces that.
type Dispatcher struct {
	runner Runner
	logger *slog.Logger
	tracer trace.Tracer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(runner Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner: runner,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Send performs one round trip. On success both turns are appended to t and
// the reply text is returned. On failure t is left untouched and the error is
// an *Error.
func (d *Dispatcher) Send(ctx context.Context, message string, cfg config.Langflow, t *transcript.Transcript) (string, error) {
	endpoint, ok := langflow.ResolveEndpoint(cfg)
	if !ok {
		return "", ErrConfiguration("no api_endpoint, or host_url and flow_id, configured")
	}

	var history []transcript.Turn
	if t != nil {
		history = t.Snapshot()
	}

	ctx, span := d.tracer.Start(ctx, "langflow.run", trace.WithAttributes(
		attribute.String("langflow.endpoint", endpoint),
		attribute.Int("chat.history_turns", len(history)),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	start := time.Now()
	body, err := d.runner.Run(runCtx, endpoint, cfg.APIKey, langflow.NewRunRequest(message, history))
	duration := time.Since(start)
	if err != nil {
		chatErr := classify(ctx, err)
		d.fail(ctx, span, chatErr, endpoint, duration)
		return "", chatErr
	}

	if !json.Valid(body) {
		chatErr := ErrMalformedResponse("response body is not valid JSON")
		d.fail(ctx, span, chatErr, endpoint, duration)
		return "", chatErr
	}

	r := reply.Extract(body)
	if strings.TrimSpace(r.Text) == "" {
		chatErr := ErrEmptyResponse("response normalized to blank text")
		d.fail(ctx, span, chatErr, endpoint, duration)
		return "", chatErr
	}

	if t != nil {
		t.AppendExchange(message, r.Text)
	}

	span.SetAttributes(
		attribute.String("reply.rule", r.Rule),
		attribute.Bool("reply.fallback", r.Fallback),
	)
	d.logger.InfoContext(ctx, "langflow reply received",
		slog.String("endpoint", endpoint),
		slog.String("rule", r.Rule),
		slog.Bool("fallback", r.Fallback),
		slog.Duration("duration", duration),
	)

	return r.Text, nil
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, err *Error, endpoint string, duration time.Duration) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))

	attrs := []slog.Attr{
		slog.String("endpoint", endpoint),
		slog.String("kind", string(err.Kind)),
		slog.Duration("duration", duration),
		slog.String("error", err.Error()),
	}
	if err.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", err.StatusCode))
	}
	d.logger.LogAttrs(ctx, slog.LevelWarn, "langflow request failed", attrs...)
}

// classify maps a transport error to a send error. parent is the caller's
// context, before the per-request deadline was applied.
func classify(parent context.Context, err error) *Error {
	var statusErr *langflow.StatusError
	switch {
	case errors.As(err, &statusErr):
		return ErrHTTP(statusErr.StatusCode, statusErr.StatusText, statusErr.Body).WithCause(err)
	case errors.Is(err, langflow.ErrResponseTooLarge):
		return ErrMalformedResponse("response body too large").WithCause(err)
	case errors.Is(parent.Err(), context.Canceled):
		return NewError(KindCanceled, "request canceled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout("request exceeded deadline").WithCause(err)
	default:
		return NewError(KindTransport, "request failed").WithCause(err)
	}
}
