package relay

import (
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// SanitizeMessage prepares an agent reply for the Cloud API: markup
// tags stripped, HTML entities decoded (non-breaking spaces become
// plain spaces), surrounding whitespace trimmed.
func SanitizeMessage(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}
