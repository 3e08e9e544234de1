// Package repl drives a chat session from a line-oriented terminal.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tjfontaine/flowchat/internal/chat"
)

// Prompt prefixes each reply written to the output.
const Prompt = "bot> "

// Sender is the part of a chat session the REPL needs.
type Sender interface {
	Send(ctx context.Context, message string) (string, error)
}

// Run reads one message per line from in until EOF or ctx is done, writing
// each reply (or its user-facing error) to out. Blank lines are skipped.
func Run(ctx context.Context, in io.Reader, out io.Writer, s Sender) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := Ask(ctx, out, s, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Ask sends a single message and writes the outcome to out. Send failures are
// rendered, not returned; only write errors and cancellation are returned.
func Ask(ctx context.Context, out io.Writer, s Sender, message string) error {
	text, err := s.Send(ctx, message)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		text = chat.UserMessage(err)
	}
	_, werr := fmt.Fprintf(out, "%s%s\n", Prompt, text)
	return werr
}
