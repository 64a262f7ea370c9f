// Package processor runs the email-to-notification pipeline for inbound
// email events.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/smtp-ntfy-bridge/internal/email"
	"github.com/shineum/smtp-ntfy-bridge/internal/notify"
	"github.com/shineum/smtp-ntfy-bridge/internal/parser"
	"github.com/shineum/smtp-ntfy-bridge/internal/sanitize"
)

// defaultSubject is used for emails without a Subject header.
const defaultSubject = "(no subject)"

// ErrNoNotifier is returned by New when no notifier is configured.
var ErrNoNotifier = errors.New("processor requires a notifier")

// Options holds the configuration for creating a Processor.
type Options struct {
	// Notifier delivers the formatted notifications.
	Notifier notify.Notifier

	// MaxBodyLength is the number of body characters kept in a
	// notification. Zero means sanitize.DefaultMaxLength.
	MaxBodyLength int
}

// Processor turns inbound emails into notifications.
type Processor struct {
	notifier      notify.Notifier
	maxBodyLength int

	// now is the clock used for emails without a Date header.
	now func() time.Time
}

// New creates a Processor with the given options.
func New(opts Options) (*Processor, error) {
	if opts.Notifier == nil {
		return nil, ErrNoNotifier
	}

	maxLen := opts.MaxBodyLength
	if maxLen <= 0 {
		maxLen = sanitize.DefaultMaxLength
	}

	return &Processor{
		notifier:      opts.Notifier,
		maxBodyLength: maxLen,
		now:           time.Now,
	}, nil
}

// Handle processes one email and never fails. Any error (or panic) raised
// while processing is logged and dropped, so the ingress that delivered the
// email acknowledges it and a permanently broken message is not redelivered.
func (p *Processor) Handle(ctx context.Context, msg *email.RawEmail) {
	if msg == nil {
		slog.Warn("ignoring nil email event")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing email",
				"from", msg.From,
				"to", msg.To,
				"panic", r,
			)
		}
	}()

	if err := p.Process(ctx, msg); err != nil {
		slog.Error("failed to process email",
			"from", msg.From,
			"to", msg.To,
			"notifier", p.notifier.Name(),
			"error", err,
		)
	}
}

// Process extracts the plain-text body of msg, formats it as a markdown
// notification and sends it to the topic derived from the recipient
// domain. Only delivery failures are returned.
func (p *Processor) Process(ctx context.Context, msg *email.RawEmail) error {
	body := parser.ExtractPlainText(msg.Text())
	body = sanitize.TruncateText(sanitize.CleanBodyText(body), p.maxBodyLength)

	subject := msg.HeaderText("subject")
	if subject == "" {
		subject = defaultSubject
	}

	date := msg.Header("date")
	if date == "" {
		date = p.now().Format(time.RFC1123Z)
	}

	notice := email.Notice{
		From:    msg.From,
		To:      msg.To,
		Subject: subject,
		Date:    date,
		Body:    body,
	}

	n := &notify.Notification{
		Topic:   notify.GenerateTopic(msg.To),
		Payload: notify.BuildMarkdownPayload(notice),
		Subject: subject,
		To:      msg.To,
	}

	slog.Debug("processing email",
		"from", msg.From,
		"to", msg.To,
		"topic", n.Topic,
		"body_length", len(body),
	)

	if err := p.notifier.Send(ctx, n); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}
