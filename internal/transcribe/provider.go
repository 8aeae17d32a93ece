package transcribe

import (
	"context"
	"errors"
)

// Method tags recorded in transcription metadata.
const (
	MethodBaseline = "baseline"
	MethodEnhanced = "enhanced"
)

// ErrUnavailable is returned when a backend is not usable in the current
// environment (sidecar not running, endpoint unreachable). It is a
// recoverable condition: the fallback provider retries against the
// baseline backend instead of surfacing it to the caller.
var ErrUnavailable = errors.New("transcription backend unavailable")

// Segment is one contiguous span of transcribed speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Word is a single word with timing, alignment confidence and speaker label.
// Only the enhanced backend produces word-level data.
type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score,omitempty"`
	Speaker string  `json:"speaker,omitempty"`
}

// Result is the output of one transcription run. Exactly one backend
// produces a Result; outputs are never merged across backends.
type Result struct {
	Text      string
	Formatted string // speaker-labelled transcript, empty without diarization
	Segments  []Segment
	Words     []Word
	Speakers  []string
	Language  string
	Method    string
}

// Provider converts an audio file into a transcription Result.
//
// Implementations fail with an error wrapping ErrUnavailable when the
// backend cannot run at all, and with an ordinary error when the audio is
// unreadable or the backend rejects it.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}
