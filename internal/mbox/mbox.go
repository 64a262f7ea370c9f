// Package mbox replays the messages of an mbox archive through a Handler,
// one inbound email event per message.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/shineum/smtp-ntfy-bridge/internal/parser"
	"github.com/shineum/smtp-ntfy-bridge/internal/smtp"
)

// Replay opens the mbox file at path and hands every message to h. It
// returns the number of messages handled.
func Replay(ctx context.Context, path string, h smtp.Handler) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	return ReplayReader(ctx, file, h)
}

// ReplayReader is Replay over an already opened mbox stream. Envelope
// addresses are taken from each message's From and To headers.
func ReplayReader(ctx context.Context, r io.Reader, h smtp.Handler) (int, error) {
	reader := mboxlib.NewReader(r)

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("message %d: %w", count, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return count, fmt.Errorf("message %d read: %w", count, err)
		}
		if len(raw) == 0 {
			slog.Debug("skipping empty mbox message", "index", count)
			continue
		}

		msg := parser.ReadEmail(raw, "", "")
		h.Handle(ctx, msg)
		count++
	}
}
