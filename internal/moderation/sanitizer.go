package moderation

import (
	"strings"
)

// htmlEscaper covers the five HTML-significant characters plus forward slash.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Sanitize entity-escapes the text and trims surrounding whitespace. It is
// applied exactly once, after validation passes and before persistence;
// applying it twice double-encodes.
func Sanitize(text string) string {
	return strings.TrimSpace(htmlEscaper.Replace(text))
}
