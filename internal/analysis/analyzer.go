package analysis

import (
	"context"
	"errors"
)

// Sentiment labels form a fixed set; SentimentScore is the confidence of
// the chosen label in [0,1].
const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"
)

// DefaultMaxActionItems bounds the extracted action item list.
const DefaultMaxActionItems = 5

// ErrUnavailable is returned when a remote analysis backend is configured
// but unreachable or timed out. Callers fall back to the local analyzer
// rather than leaving analysis fields empty.
var ErrUnavailable = errors.New("analysis backend unavailable")

// Result is the derived insight set for one transcript.
type Result struct {
	Summary        string
	Sentiment      string
	SentimentScore float64
	ActionItems    []string
}

// Analyzer produces a summary, sentiment and action items from transcript
// text. Implementations must cover the entire input even when it exceeds
// their context window, and must behave as a pure function from the
// caller's perspective.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (Result, error)
}

// ValidLabel reports whether s is one of the fixed sentiment labels.
func ValidLabel(s string) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}
