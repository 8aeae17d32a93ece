package pipeline

import "errors"

// Kind classifies a pipeline failure so the API layer can map it to an
// HTTP status without inspecting error strings.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindTranscription Kind = "transcription_error"
	KindAnalysis      Kind = "analysis_error"
	KindStorage       Kind = "storage_error"
	KindNotFound      Kind = "not_found"
)

// Error wraps a failure with its Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind of err, or KindStorage for errors that did not
// come out of the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindStorage
}

func wrapErr(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
