package moderation

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const previewLimit = 50

var previewPolicy = bluemonday.StrictPolicy()

// Preview produces a log-safe excerpt of submitted content: markup stripped,
// whitespace collapsed, truncated to fifty characters. Rejected content is
// only ever logged through this helper.
func Preview(text string) string {
	stripped := previewPolicy.Sanitize(text)
	stripped = strings.Join(strings.Fields(stripped), " ")
	runes := []rune(stripped)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "…"
	}
	return stripped
}
