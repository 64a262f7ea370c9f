// Package stdout implements a Notifier that prints notifications to standard
// output instead of publishing them. It backs the --dry-run mode.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shineum/smtp-ntfy-bridge/internal/notify"
)

// Notifier prints notifications in a human-readable format.
type Notifier struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Notifier that writes to os.Stdout.
func New() *Notifier {
	return &Notifier{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Notifier that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Notifier {
	return &Notifier{writer: w}
}

// Send prints the notification in a readable format.
func (p *Notifier) Send(_ context.Context, n *notify.Notification) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Topic: %s\n", n.Topic))
	b.WriteString(fmt.Sprintf("Title: Email: %s\n", n.Subject))
	b.WriteString(fmt.Sprintf("Tags: email,%s\n", n.To))
	b.WriteString(fmt.Sprintf("Payload (%s):\n", formatSize(n.Payload)))
	b.WriteString(n.Payload + "\n")
	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Name returns the notifier name.
func (p *Notifier) Name() string {
	return "stdout"
}

// formatSize describes the payload length in characters and bytes.
func formatSize(s string) string {
	chars := utf8.RuneCountInString(s)
	if chars == len(s) {
		return fmt.Sprintf("%d chars", chars)
	}
	return fmt.Sprintf("%d chars, %d B", chars, len(s))
}
