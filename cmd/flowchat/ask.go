package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/flowchat/internal/repl"
)

func newAskCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Chat with the configured flow from the terminal",
		Long: `Reads one message per line from stdin and prints each reply.
With -m, sends a single message and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAsk(ctx, message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	return cmd
}

func runAsk(ctx context.Context, message string) error {
	// Logs and spans go to stderr so replies stay clean on stdout.
	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.registry.Create()
	if message != "" {
		return repl.Ask(ctx, os.Stdout, sess, message)
	}
	return repl.Run(ctx, os.Stdin, os.Stdout, sess)
}
