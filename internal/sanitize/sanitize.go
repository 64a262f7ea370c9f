// Package sanitize normalizes email text before it is put into a notification.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the default body length, in characters, kept by
// TruncateText.
const DefaultMaxLength = 1000

// truncationMarker is appended to bodies cut by TruncateText.
const truncationMarker = "\n\n*...truncated*"

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	lineBreakPattern  = regexp.MustCompile(`[\r\n]`)
)

// CleanBodyText drops quoted-reply lines (those starting with ">") and
// normalizes whitespace. Each remaining line has its whitespace runs
// collapsed to a single space and is trimmed, runs of blank lines are
// reduced to one, and the result is trimmed.
func CleanBodyText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
		if strings.HasPrefix(line, ">") {
			continue
		}
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// TruncateText cuts text to maxLength characters and appends a truncation
// marker. Text that already fits is returned unchanged.
func TruncateText(text string, maxLength int) string {
	if maxLength < 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}

	runes := []rune(text)
	return string(runes[:maxLength]) + truncationMarker
}

// Header makes a value safe for use in a single-line header: line breaks
// become spaces, whitespace runs collapse to one space and the result is
// trimmed.
func Header(value string) string {
	value = lineBreakPattern.ReplaceAllString(value, " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}
