// Package moderation implements the content checks of the admission pipeline:
// structural validation, escaping, heuristic spam scoring, near-duplicate
// detection, and repeat-offender tracking. Every component is a pure function
// over its configuration except the stateful detectors, which own their maps.
package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloud-atlas/api/internal/platform/config"
)

// ValidationVerdict reports the first violated rule, if any.
type ValidationVerdict struct {
	Valid  bool
	Reason string
}

// Patterns rejected outright: script injection and markup smuggling.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<embed`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)expression\(`),
	regexp.MustCompile(`(?i)<link[^>]*>`),
	regexp.MustCompile(`(?i)<meta[^>]*>`),
}

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)
	// A long run of characters outside word, whitespace, CJK, and basic
	// punctuation classes reads as keyboard mashing.
	gibberishPattern = regexp.MustCompile(`[^\w\s` + cjkClass + `.,!?、。！？]{20,}`)
	digitsPattern    = regexp.MustCompile(`^\d+$`)
)

const cjkClass = `\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FAF}`

// Validator applies the ordered structural rules; the first failure wins.
type Validator struct {
	minLength      int
	maxLength      int
	maxURLs        int
	forbiddenWords []string
}

// NewValidator compiles the rule set from configuration. Forbidden words are
// normalized once (lowercased, whitespace removed) so matching is a plain
// substring test.
func NewValidator(cfg config.ModerationConfig) *Validator {
	words := make([]string, 0, len(cfg.ForbiddenWords))
	for _, word := range cfg.ForbiddenWords {
		normalized := stripWhitespace(strings.ToLower(word))
		if normalized != "" {
			words = append(words, normalized)
		}
	}
	return &Validator{
		minLength:      cfg.MinLength,
		maxLength:      cfg.MaxLength,
		maxURLs:        cfg.MaxURLs,
		forbiddenWords: words,
	}
}

// Validate checks the raw submission text. Exactly one reason is reported per
// rejection: the first rule violated, in the documented order.
func (v *Validator) Validate(text string) ValidationVerdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalid("Memory cannot be empty")
	}

	length := utf8.RuneCountInString(trimmed)
	if length < v.minLength {
		return invalid(fmt.Sprintf("Memory is too short (minimum %d characters)", v.minLength))
	}
	if length > v.maxLength {
		return invalid(fmt.Sprintf("Memory is too long (maximum %d characters)", v.maxLength))
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(text) {
			return invalid("Memory contains forbidden patterns")
		}
	}

	if looksLikeSpamStructure(text) {
		return invalid("Memory appears to be spam")
	}

	normalized := stripWhitespace(strings.ToLower(text))
	for _, word := range v.forbiddenWords {
		if strings.Contains(normalized, word) {
			return invalid("Memory contains forbidden words")
		}
	}

	if len(urlPattern.FindAllString(text, -1)) > v.maxURLs {
		return invalid("Too many URLs in memory")
	}

	if length < 50 && countEmoji(text) > 10 {
		return invalid("Too many emojis for short message")
	}

	if digitsPattern.MatchString(trimmed) {
		return invalid("Memory cannot contain only numbers")
	}

	if specialCharRatio(text) > 0.5 {
		return invalid("Too many special characters")
	}

	return ValidationVerdict{Valid: true}
}

func invalid(reason string) ValidationVerdict {
	return ValidationVerdict{Valid: false, Reason: reason}
}

// looksLikeSpamStructure covers the structural spam shapes: one character
// repeated at least ten times, three or more URLs, or a long gibberish run.
func looksLikeSpamStructure(text string) bool {
	if longestRun(text) >= 10 {
		return true
	}
	if len(urlPattern.FindAllString(text, -1)) >= 3 {
		return true
	}
	return gibberishPattern.MatchString(text)
}

// longestRun returns the length of the longest run of one repeated rune.
// RE2 has no backreferences, so runs are measured directly.
func longestRun(text string) int {
	var prev rune
	run, longest := 0, 0
	for _, r := range text {
		if run > 0 && r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// countEmoji counts code points in the primary emoji block.
func countEmoji(s string) int {
	count := 0
	for _, r := range s {
		if r >= 0x1F600 && r <= 0x1F6FF {
			count++
		}
	}
	return count
}

// specialCharRatio is the share of runes outside letters, digits, whitespace,
// and the CJK ranges.
func specialCharRatio(s string) float64 {
	total, special := 0, 0
	for _, r := range s {
		total++
		if !isPlainRune(r) {
			special++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

func isPlainRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case unicode.IsSpace(r):
		return true
	default:
		return isCJK(r)
	}
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0x4E00 && r <= 0x9FAF: // unified ideographs
		return true
	}
	return false
}
