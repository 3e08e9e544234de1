package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tjfontaine/flowchat/internal/api/langflow"
	"github.com/tjfontaine/flowchat/internal/chat"
	"github.com/tjfontaine/flowchat/internal/config"
	"github.com/tjfontaine/flowchat/internal/telemetry"
)

// app holds the components shared by serve and ask.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	holder   *config.Holder
	loader   *config.OverlayLoader
	registry *chat.Registry
	shutdown telemetry.ShutdownFunc
}

// newApp loads configuration, installs the logger and tracer, and starts the
// overlay loader in the background. Logs and exported spans both go to diag.
func newApp(ctx context.Context, diag io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Log, diag)
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer(cfg.Telemetry, diag, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}

	holder := config.NewHolder(cfg.Langflow)
	loader := config.NewOverlayLoader(cfg.Overlay.Path, holder, logger)
	loader.Start(ctx)

	dispatcher := chat.NewDispatcher(langflow.NewClient(), logger)
	registry := chat.NewRegistry(holder, dispatcher, cfg.Overlay.Grace(), logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		holder:   holder,
		loader:   loader,
		registry: registry,
		shutdown: shutdown,
	}, nil
}

func (a *app) Close() {
	if err := a.loader.Close(); err != nil {
		a.logger.Warn("failed to close overlay loader", slog.String("error", err.Error()))
	}
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
