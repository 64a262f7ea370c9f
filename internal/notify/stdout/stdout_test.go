package stdout

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shineum/smtp-ntfy-bridge/internal/notify"
)

func TestSend_BasicNotification(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	n := &notify.Notification{
		Topic:   "example-com",
		Payload: "**Subject:** Monthly Report\n\n---\n\nPlease find the report attached.",
		Subject: "Monthly Report",
		To:      "alice@example.com",
	}

	if err := p.Send(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Topic: example-com") {
		t.Error("output missing topic")
	}
	if !strings.Contains(output, "Title: Email: Monthly Report") {
		t.Error("output missing title")
	}
	if !strings.Contains(output, "Tags: email,alice@example.com") {
		t.Error("output missing tags")
	}
	if !strings.Contains(output, "Please find the report attached.") {
		t.Error("output missing payload")
	}
	if !strings.HasPrefix(output, "========================================\n") {
		t.Error("output should start with separator line")
	}
	if !strings.HasSuffix(output, "========================================\n") {
		t.Error("output should end with separator line")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestSend_WriteError(t *testing.T) {
	t.Parallel()

	p := NewWithWriter(failingWriter{})
	if err := p.Send(context.Background(), &notify.Notification{Topic: "t"}); err == nil {
		t.Error("expected error from failing writer, got nil")
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	if got := New().Name(); got != "stdout" {
		t.Errorf("Name(): got %q, want %q", got, "stdout")
	}
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: "0 chars"},
		{input: "hello", want: "5 chars"},
		{input: "héllo", want: "5 chars, 6 B"},
	}

	for _, tt := range tests {
		if got := formatSize(tt.input); got != tt.want {
			t.Errorf("formatSize(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}
