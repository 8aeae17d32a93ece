package analysis

import (
	"context"
	"errors"
	"log/slog"
)

// Fallback tries the remote analyzer first and degrades to the local one.
//
// When fallbackToLocal is false a remote failure is surfaced to the
// caller instead; the pipeline then persists the transcript with empty
// analysis fields so the work can be regenerated later.
type Fallback struct {
	remote          Analyzer // nil when not configured
	local           Analyzer
	fallbackToLocal bool
	logger          *slog.Logger
}

// NewFallback creates a Fallback analyzer. remote may be nil.
func NewFallback(remote, local Analyzer, fallbackToLocal bool) *Fallback {
	return &Fallback{
		remote:          remote,
		local:           local,
		fallbackToLocal: fallbackToLocal,
		logger:          slog.Default(),
	}
}

func (f *Fallback) Analyze(ctx context.Context, transcript string) (Result, error) {
	if f.remote == nil {
		return f.local.Analyze(ctx, transcript)
	}

	result, err := f.remote.Analyze(ctx, transcript)
	if err == nil {
		return result, nil
	}

	if !f.fallbackToLocal {
		return Result{}, err
	}

	if errors.Is(err, ErrUnavailable) {
		f.logger.Warn("remote analysis unavailable, using local analyzer", "error", err)
	} else {
		f.logger.Warn("remote analysis failed, using local analyzer", "error", err)
	}
	return f.local.Analyze(ctx, transcript)
}
