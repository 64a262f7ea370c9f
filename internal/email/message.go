// Package email defines the core email data model used throughout the bridge.
package email

import (
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

// RawEmail is a single inbound email event as delivered by an ingress
// adapter (SMTP session, webhook request, mbox archive).
type RawEmail struct {
	// From and To are the envelope addresses of the event.
	From string
	To   string

	// Raw holds the complete message bytes, headers included.
	Raw []byte

	header textproto.Header
}

// New creates a RawEmail with the given envelope and parsed header block.
func New(from, to string, raw []byte, header textproto.Header) *RawEmail {
	return &RawEmail{
		From:   from,
		To:     to,
		Raw:    raw,
		header: header,
	}
}

// Header returns the raw value of the named header. Lookup is
// case-insensitive and an absent header yields the empty string.
func (m *RawEmail) Header(name string) string {
	return m.header.Get(name)
}

// HeaderText returns the named header with RFC 2047 encoded-words decoded.
// If the value cannot be decoded, the raw value is returned.
func (m *RawEmail) HeaderText(name string) string {
	h := message.Header{Header: m.header}
	text, err := h.Text(name)
	if err != nil {
		return m.Header(name)
	}
	return text
}

// Text returns the raw message as a string.
func (m *RawEmail) Text() string {
	return string(m.Raw)
}

// Notice is the metadata and cleaned body of one email, ready to be
// formatted as a notification.
type Notice struct {
	From    string
	To      string
	Subject string
	Date    string
	Body    string
}
