package moderation

import (
	"regexp"
	"strings"
)

var (
	botPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bot`),
		regexp.MustCompile(`(?i)crawler`),
		regexp.MustCompile(`(?i)spider`),
		regexp.MustCompile(`(?i)scraper`),
		regexp.MustCompile(`(?i)curl`),
		regexp.MustCompile(`(?i)wget`),
		regexp.MustCompile(`(?i)python`),
	}
	browserPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)mozilla`),
		regexp.MustCompile(`(?i)chrome`),
		regexp.MustCompile(`(?i)safari`),
		regexp.MustCompile(`(?i)firefox`),
		regexp.MustCompile(`(?i)edge`),
		regexp.MustCompile(`(?i)opera`),
	}
)

// ValidContentType accepts any content type that carries application/json.
func ValidContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// ValidUserAgent is a plausibility check used as a bot-detection aid: known
// automation agents fail, recognised browser families pass, everything else
// fails. Advisory only; never the sole basis for rejection.
func ValidUserAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return false
	}
	for _, pattern := range botPatterns {
		if pattern.MatchString(userAgent) {
			return false
		}
	}
	for _, pattern := range browserPatterns {
		if pattern.MatchString(userAgent) {
			return true
		}
	}
	return false
}
