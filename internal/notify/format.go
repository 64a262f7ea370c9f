package notify

import (
	"fmt"
	"strings"

	"github.com/shineum/smtp-ntfy-bridge/internal/email"
	"github.com/shineum/smtp-ntfy-bridge/internal/sanitize"
)

// unknownTopic is used when no domain can be derived from an address.
const unknownTopic = "unknown"

// GenerateTopic derives a topic name from an email address: the domain
// after the first "@" with every "." replaced by "-". Addresses without a
// domain map to "unknown".
func GenerateTopic(address string) string {
	at := strings.IndexByte(address, '@')
	if at < 0 {
		return unknownTopic
	}

	domain := address[at+1:]
	if domain == "" {
		return unknownTopic
	}
	return strings.ReplaceAll(domain, ".", "-")
}

// BuildMarkdownPayload renders a notice as the markdown notification body.
// Header fields are sanitized; the body is expected to be cleaned and
// truncated already.
func BuildMarkdownPayload(n email.Notice) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Date:** %s\n", sanitize.Header(n.Date))
	fmt.Fprintf(&b, "**From:** %s\n", sanitize.Header(n.From))
	fmt.Fprintf(&b, "**To:** %s\n", sanitize.Header(n.To))
	fmt.Fprintf(&b, "**Subject:** %s\n", sanitize.Header(n.Subject))
	b.WriteString("\n---\n\n")
	b.WriteString(n.Body)

	return strings.TrimSpace(b.String())
}
