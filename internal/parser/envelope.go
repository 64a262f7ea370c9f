package parser

import (
	"bufio"
	"bytes"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/shineum/smtp-ntfy-bridge/internal/email"
)

// ReadEmail builds a RawEmail from raw message bytes. The header block is
// parsed for case-insensitive lookup; a malformed block leaves the header
// table empty rather than failing. Empty envelope addresses are filled in
// from the From and To headers.
func ReadEmail(raw []byte, from, to string) *email.RawEmail {
	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		slog.Debug("failed to read message header", "error", err)
		header = textproto.Header{}
	}

	h := mail.Header{Header: message.Header{Header: header}}
	if from == "" {
		from = firstAddress(&h, "From")
	}
	if to == "" {
		to = firstAddress(&h, "To")
	}

	return email.New(from, to, raw, header)
}

// firstAddress returns the first address of an address-list header.
// Unparseable lists fall back to the first comma-separated entry.
func firstAddress(h *mail.Header, key string) string {
	addrs, err := h.AddressList(key)
	if err == nil && len(addrs) > 0 {
		return addrs[0].Address
	}

	raw := strings.TrimSpace(h.Get(key))
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	if start := strings.IndexByte(raw, '<'); start >= 0 {
		if end := strings.IndexByte(raw[start:], '>'); end > 0 {
			return raw[start+1 : start+end]
		}
	}
	return raw
}
