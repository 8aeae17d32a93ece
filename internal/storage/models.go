package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TranscriptionMeta records how a transcript was produced.
type TranscriptionMeta struct {
	Method    string   `json:"method"` // "baseline" or "enhanced"
	Language  string   `json:"language,omitempty"`
	Speakers  []string `json:"speakers,omitempty"`
	WordCount int      `json:"word_count,omitempty"`
}

// Meeting is the persistent record produced by one processing run.
//
// A meeting is written exactly once, after transcription has succeeded.
// Summary, Sentiment and SentimentScore are nil when analysis failed for
// that run; they are populated together by UpdateAnalysis on regenerate.
type Meeting struct {
	ID                  int64
	Title               string
	Date                time.Time
	AudioFilename       string
	Transcript          string
	FormattedTranscript string // speaker-labelled, empty unless diarization ran
	Metadata            *TranscriptionMeta
	Summary             *string
	Sentiment           *string
	SentimentScore      *float64
	ActionItems         []string
	CreatedAt           time.Time
}

// HasAnalysis reports whether the analysis fields are populated.
func (m Meeting) HasAnalysis() bool {
	return m.Summary != nil && m.Sentiment != nil && m.SentimentScore != nil
}
