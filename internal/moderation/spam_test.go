package moderation

import (
	"strings"
	"testing"
)

func TestScorerPlainSentenceScoresZero(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("Remembering summer by the lake in 2019 with friends.")
	if verdict.Score != 0 {
		t.Fatalf("expected score 0, got %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
	if verdict.IsSpam {
		t.Fatal("plain sentence must not be spam")
	}
	if len(verdict.Reasons) != 0 {
		t.Fatalf("expected no reasons, got %v", verdict.Reasons)
	}
}

func TestScorerSpamAdScoresAboveThreshold(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("BUY NOW BUY NOW BUY NOW http://a.com http://b.com http://c.com")
	if !verdict.IsSpam {
		t.Fatalf("expected spam, score %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
	if verdict.Score < 35 {
		t.Fatalf("expected score >= threshold, got %d", verdict.Score)
	}
	if len(verdict.Reasons) == 0 {
		t.Fatal("expected triggered reasons")
	}
}

func TestScorerRepeatedCharacters(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("greaaaaaat day and coooooool water here")
	if verdict.Score != 30 {
		t.Fatalf("expected 15 per run group (30), got %d", verdict.Score)
	}
	if len(verdict.Reasons) != 1 || verdict.Reasons[0] != "Repeated characters detected" {
		t.Fatalf("unexpected reasons %v", verdict.Reasons)
	}
}

func TestScorerRepeatedTokens(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("win win win a prize prize prize today")
	if verdict.Score != 60 {
		t.Fatalf("expected 30 per repeated token match (60), got %d", verdict.Score)
	}
}

func TestScorerUppercaseShouting(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("THISISALLCAPSSHOUTING")
	if verdict.Score != 20 {
		t.Fatalf("expected 20 for uppercase ratio, got %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
}

func TestScorerShortTextWithURL(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("look http://tiny.example/x")
	// One URL (+10) plus the short-text-with-URL combination (+20).
	if verdict.Score != 30 {
		t.Fatalf("expected 30, got %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
}

func TestScorerDigitsOnly(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("20190815")
	if verdict.Score != 25 {
		t.Fatalf("expected 25 for digits only, got %d", verdict.Score)
	}
}

func TestScorerKeywordsCountPerDistinctMatch(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("Click here for free money, work from home today")
	// click here + free money + work from home.
	found := 0
	for _, reason := range verdict.Reasons {
		if strings.HasPrefix(reason, "Spam keyword detected: ") {
			found++
		}
	}
	if found != 3 {
		t.Fatalf("expected 3 keyword reasons, got %d (%v)", found, verdict.Reasons)
	}
	if verdict.Score < 90 {
		t.Fatalf("expected at least 90 from keywords, got %d", verdict.Score)
	}
	if !verdict.IsSpam {
		t.Fatal("expected spam verdict")
	}
}

func TestScorerEmojiBurst(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("great party last night " + strings.Repeat("\U0001F600\U0001F601\U0001F602", 2))
	if verdict.Score != 20 {
		t.Fatalf("expected 20 for emoji burst, got %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
}

func TestScorerWidthMix(t *testing.T) {
	scorer := NewScorer(testModerationConfig())
	verdict := scorer.Score("abcde あいうえお")
	if verdict.Score != 10 {
		t.Fatalf("expected 10 for width mix, got %d (reasons %v)", verdict.Score, verdict.Reasons)
	}
	if len(verdict.Reasons) != 1 || verdict.Reasons[0] != "Unusual character mix" {
		t.Fatalf("unexpected reasons %v", verdict.Reasons)
	}
}
