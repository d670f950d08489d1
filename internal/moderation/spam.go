package moderation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/cloud-atlas/api/internal/platform/config"
)

// SpamVerdict is the scorer's output: an additive score, the reasons that
// contributed in evaluation order, and the thresholded decision. Reasons are
// for audit logging, never for branching.
type SpamVerdict struct {
	Score   int
	Reasons []string
	IsSpam  bool
}

// Scorer runs the weighted spam heuristics. All heuristics are independent
// and additive; several may fire on the same input.
type Scorer struct {
	threshold int
	keywords  []string
}

// NewScorer builds a scorer from configuration. Keywords match
// case-insensitively as substrings.
func NewScorer(cfg config.ModerationConfig) *Scorer {
	keywords := make([]string, 0, len(cfg.SpamKeywords))
	for _, kw := range cfg.SpamKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Scorer{threshold: cfg.SpamThreshold, keywords: keywords}
}

// Score evaluates the text against every heuristic.
func (s *Scorer) Score(text string) SpamVerdict {
	verdict := SpamVerdict{}
	add := func(points int, reason string) {
		verdict.Score += points
		verdict.Reasons = append(verdict.Reasons, reason)
	}

	if groups := repeatedRunGroups(text); groups > 0 {
		add(15*groups, "Repeated characters detected")
	}

	if matches := repeatedTokenMatches(text); matches > 0 {
		add(30*matches, "Repeated words detected")
	}

	runes := []rune(text)
	if len(runes) > 10 {
		upper := 0
		for _, r := range runes {
			if r >= 'A' && r <= 'Z' {
				upper++
			}
		}
		if float64(upper)/float64(len(runes)) > 0.7 {
			add(20, "Excessive uppercase")
		}
	}

	if specialCharRatio(text) > 0.3 {
		add(15, "Too many special characters")
	}

	urls := urlPattern.FindAllString(text, -1)
	if len(urls) > 0 {
		add(10*len(urls), "Contains URLs")
		stripped := strings.TrimSpace(urlPattern.ReplaceAllString(text, ""))
		if len([]rune(stripped)) < 30 {
			add(20, "Short text with URLs")
		}
		if len(urls) > 2 {
			add(15*len(urls), "Multiple URLs detected")
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && digitsPattern.MatchString(trimmed) {
		add(25, "Numbers only")
	}

	if len(runes) < 50 && countEmoji(text) > 5 {
		add(20, "Excessive emojis")
	}

	lower := strings.ToLower(text)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			add(30, fmt.Sprintf("Spam keyword detected: %s", kw))
		}
	}

	if unusualWidthMix(text) {
		add(10, "Unusual character mix")
	}

	verdict.IsSpam = verdict.Score >= s.threshold
	return verdict
}

// repeatedRunGroups counts maximal runs of five or more identical runes.
func repeatedRunGroups(text string) int {
	groups := 0
	var prev rune
	run := 0
	flush := func() {
		if run >= 5 {
			groups++
		}
	}
	for _, r := range text {
		if run > 0 && r == prev {
			run++
			continue
		}
		flush()
		prev = r
		run = 1
	}
	flush()
	return groups
}

// repeatedTokenMatches counts contiguous repetitions of the same token
// (three or more characters, case-insensitive) occurring three or more times.
func repeatedTokenMatches(text string) int {
	fields := strings.Fields(strings.ToLower(text))
	matches := 0
	run := 0
	var prev string
	flush := func() {
		if run >= 3 {
			matches++
		}
	}
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < 3 {
			flush()
			run = 0
			prev = ""
			continue
		}
		if tok == prev {
			run++
			continue
		}
		flush()
		prev = tok
		run = 1
	}
	flush()
	return matches
}

// unusualWidthMix reports whether full-width and half-width characters are
// both present in near-equal proportion, a shape rarely produced by humans.
func unusualWidthMix(text string) bool {
	fullWidth, halfWidth := 0, 0
	for _, r := range text {
		if isHalfWidthAlnum(r) {
			halfWidth++
			continue
		}
		if isFullWidthRune(r) {
			fullWidth++
		}
	}
	if fullWidth == 0 || halfWidth == 0 {
		return false
	}
	minCount, maxCount := fullWidth, halfWidth
	if minCount > maxCount {
		minCount, maxCount = maxCount, minCount
	}
	return float64(minCount)/float64(maxCount) > 0.7
}

func isHalfWidthAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isFullWidthRune(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianFullwidth, width.EastAsianWide:
		return true
	}
	// CJK punctuation and half/full-width forms used by the legacy ranges.
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}
