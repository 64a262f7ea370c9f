// Package notify defines the notification model, its formatting and the
// interface for notification delivery backends.
package notify

import (
	"context"
)

// Notification is one push notification produced from an email.
type Notification struct {
	// Topic is the destination channel on the notification server.
	Topic string

	// Payload is the markdown message body.
	Payload string

	// Subject and To are the email subject and recipient, used for the
	// notification title and tags.
	Subject string
	To      string
}

// Notifier is the interface that notification delivery backends must
// implement (e.g., an ntfy server, stdout for dry runs).
type Notifier interface {
	// Send delivers a notification through this backend.
	// It returns an error only if the notification could not be sent.
	Send(ctx context.Context, n *Notification) error

	// Name returns the human-readable name of this backend.
	Name() string
}
