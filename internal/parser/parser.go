// Package parser extracts a readable plain-text body from raw email text.
//
// The extraction is deliberately lenient: it scans for the first MIME
// boundary, takes the first text/plain part it can decode and falls back to
// everything after the header block when no such part exists. Nested
// multipart structures are not descended into.
package parser

import (
	"log/slog"
	"regexp"
	"strings"
)

var (
	boundaryPattern  = regexp.MustCompile(`(?i)boundary="?([^";\r\n]+)`)
	textPlainPattern = regexp.MustCompile(`(?i)content-type:\s*text/plain`)
	encodingPattern  = regexp.MustCompile(`(?i)content-transfer-encoding:\s*([^\s;]+)`)
	charsetPattern   = regexp.MustCompile(`(?i)charset\s*=\s*"?([^";\s]+)`)
)

// mimePart is one boundary-delimited chunk of a multipart message.
type mimePart struct {
	header string
	body   string
}

// ExtractPlainText returns the plain-text body of a raw email message.
// Multipart messages yield their first non-empty text/plain part, decoded
// according to its Content-Transfer-Encoding. Anything else yields the
// trimmed text after the first blank line.
func ExtractPlainText(raw string) string {
	boundary := findBoundary(raw)
	if boundary == "" {
		return extractNonMIME(raw)
	}

	for _, chunk := range strings.Split(raw, "--"+boundary) {
		part := splitPart(chunk)
		if !textPlainPattern.MatchString(part.header) {
			continue
		}

		body := partBody(part)
		if body == "" {
			continue
		}

		decoded := decodePart(part.header, body)
		if strings.TrimSpace(decoded) != "" {
			return decoded
		}
	}

	slog.Debug("no text/plain part found, falling back to whole message",
		"boundary", boundary,
	)
	return extractNonMIME(raw)
}

// findBoundary returns the first boundary parameter in raw, or "".
func findBoundary(raw string) string {
	m := boundaryPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractNonMIME returns the trimmed text after the first blank line, or the
// whole trimmed text if there is none.
func extractNonMIME(raw string) string {
	idx, size := blankLine(raw)
	if idx < 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[idx+size:])
}

// splitPart separates a chunk into its header block and body. A chunk
// without a blank line is all header.
func splitPart(chunk string) mimePart {
	idx, size := blankLine(chunk)
	if idx < 0 {
		return mimePart{header: chunk}
	}
	return mimePart{
		header: chunk[:idx],
		body:   chunk[idx+size:],
	}
}

// partBody returns the trimmed body of a part with a trailing "--" closer
// removed.
func partBody(part mimePart) string {
	body := strings.TrimSpace(part.body)
	if strings.HasSuffix(body, "--") {
		body = strings.TrimSpace(strings.TrimSuffix(body, "--"))
	}
	return body
}

// decodePart decodes body according to the Content-Transfer-Encoding found
// in header. Unknown or missing encodings are treated as 7bit and returned
// unmodified. Decoded bytes are converted to UTF-8 using the part's charset.
func decodePart(header, body string) string {
	switch transferEncoding(header) {
	case "quoted-printable":
		return decodeText(decodeQuotedPrintable(body), partCharset(header))
	case "base64":
		decoded, ok := decodeBase64(body)
		if !ok {
			slog.Debug("malformed base64 body, using undecoded text",
				"length", len(body),
			)
			return body
		}
		return decodeText(decoded, partCharset(header))
	default:
		return body
	}
}

// partCharset returns the charset parameter of a header block, or "".
func partCharset(header string) string {
	m := charsetPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// transferEncoding returns the lower-cased Content-Transfer-Encoding of a
// header block, defaulting to "7bit".
func transferEncoding(header string) string {
	m := encodingPattern.FindStringSubmatch(header)
	if m == nil {
		return "7bit"
	}
	return strings.ToLower(m[1])
}

// blankLine locates the first header/body separator in s and returns its
// index and length. CRLF and bare LF line endings are both accepted.
func blankLine(s string) (int, int) {
	crlf := strings.Index(s, "\r\n\r\n")
	lf := strings.Index(s, "\n\n")

	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case lf < 0 || (crlf >= 0 && crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}
