// Package ntfy implements a Notifier that publishes notifications to an ntfy
// server over HTTP.
package ntfy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shineum/smtp-ntfy-bridge/internal/notify"
	"github.com/shineum/smtp-ntfy-bridge/internal/sanitize"
)

// ErrMissingServer is returned by New when no server URL is configured.
var ErrMissingServer = errors.New("ntfy server URL is required")

// defaultTimeout bounds a single publish request.
const defaultTimeout = 30 * time.Second

// priority is the ntfy message priority sent with every notification
// (4 = high).
const priority = "4"

// Config holds the configuration for creating a Sender.
type Config struct {
	// ServerURL is the base URL of the ntfy server, e.g. https://ntfy.sh.
	ServerURL string

	// Token is an optional access token sent as a bearer credential.
	Token string

	// Timeout bounds each request. Zero means 30 seconds.
	Timeout time.Duration
}

// Sender publishes notifications to an ntfy server.
type Sender struct {
	serverURL  string
	token      string
	httpClient *http.Client
}

// New creates a new Sender with the given configuration.
func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, ErrMissingServer
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Sender{
		serverURL:  cfg.ServerURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// newWithClient creates a Sender with a custom HTTP client, used for testing.
func newWithClient(cfg Config, client *http.Client) *Sender {
	return &Sender{
		serverURL:  cfg.ServerURL,
		token:      cfg.Token,
		httpClient: client,
	}
}

// Send publishes a notification to <server>/<topic>.
//
// A response with a non-success status is logged and otherwise ignored; it
// is not retried and not returned. A request that could not be sent at all
// is logged and returned to the caller.
func (s *Sender) Send(ctx context.Context, n *notify.Notification) error {
	url := s.topicURL(n.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(n.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Title", "Email: "+sanitize.Header(n.Subject))
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", "email,"+sanitize.Header(n.To))
	req.Header.Set("Markdown", "yes")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("failed to send notification",
			"topic", n.Topic,
			"error", err,
		)
		return fmt.Errorf("ntfy request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the content is not used.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("ntfy rejected notification",
			"topic", n.Topic,
			"status", resp.StatusCode,
		)
		return nil
	}

	slog.Info("notification sent",
		"topic", n.Topic,
		"status", resp.StatusCode,
	)
	return nil
}

// Name returns the notifier name.
func (s *Sender) Name() string {
	return "ntfy"
}

// topicURL joins the server URL and topic, dropping one trailing slash from
// the server URL.
func (s *Sender) topicURL(topic string) string {
	return strings.TrimSuffix(s.serverURL, "/") + "/" + topic
}
