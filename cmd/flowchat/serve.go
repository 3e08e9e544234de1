package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/flowchat/internal/server"
	"github.com/tjfontaine/flowchat/internal/tokens"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API for the browser widget",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, addr string) error {
	a, err := newApp(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Overlay.Watch {
		if err := a.loader.Watch(ctx); err != nil {
			a.logger.Warn("overlay watch disabled", slog.String("error", err.Error()))
		}
	}

	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	srv := server.New(server.Options{
		Addr:           addr,
		RequestTimeout: a.cfg.Server.RequestTimeoutOr(60 * time.Second),
		Logger:         a.logger,
		Registry:       a.registry,
		Holder:         a.holder,
		Counter:        tokens.NewCounter(),
	})

	if err := srv.Start(ctx); err != nil {
		a.logger.Error("server failed", slog.String("error", err.Error()))
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
