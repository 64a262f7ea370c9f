package parser

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
)

var (
	softBreakPattern = regexp.MustCompile(`=\r?\n`)
	hexEscapePattern = regexp.MustCompile(`=([0-9A-Fa-f]{2})`)
)

// DecodeQuotedPrintable decodes quoted-printable text. Soft line breaks are
// removed first, then every =XX escape is replaced by its byte value. An "="
// that starts neither an escape nor a soft break is kept as-is.
//
// The decoded bytes are read as UTF-8 when valid and as Latin-1 otherwise.
func DecodeQuotedPrintable(s string) string {
	return decodeText(decodeQuotedPrintable(s), "")
}

func decodeQuotedPrintable(s string) []byte {
	s = softBreakPattern.ReplaceAllString(s, "")
	return []byte(hexEscapePattern.ReplaceAllStringFunc(s, func(esc string) string {
		b, err := strconv.ParseUint(esc[1:], 16, 8)
		if err != nil {
			return esc
		}
		return string([]byte{byte(b)})
	}))
}

// DecodeBase64 decodes base64 text after stripping all whitespace. Both
// padded and unpadded input are accepted. The decoded bytes are read as
// UTF-8 when valid and as Latin-1 otherwise.
//
// Malformed input is not an error: the original string is returned with
// ok set to false so callers can tell a passthrough from a decoded body.
func DecodeBase64(s string) (decoded string, ok bool) {
	out, ok := decodeBase64(s)
	if !ok {
		return s, false
	}
	return decodeText(out, ""), true
}

func decodeBase64(s string) ([]byte, bool) {
	cleaned := strings.Join(strings.Fields(s), "")

	out, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Try with RawStdEncoding for unpadded base64
		out, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return nil, false
		}
	}
	return out, true
}

// decodeText turns transfer-decoded bytes into a UTF-8 string. A declared
// charset other than UTF-8 or US-ASCII is converted through go-message's
// charset tables. Remaining invalid UTF-8 maps each byte to the Latin-1
// rune of the same value.
func decodeText(b []byte, cs string) string {
	cs = strings.ToLower(strings.TrimSpace(cs))
	if cs != "" && cs != "utf-8" && cs != "utf8" && cs != "us-ascii" {
		r, err := charset.Reader(cs, bytes.NewReader(b))
		if err == nil {
			var out []byte
			out, err = io.ReadAll(r)
			if err == nil && utf8.Valid(out) {
				return string(out)
			}
		}
		slog.Debug("charset conversion failed", "charset", cs, "error", err)
	}

	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
