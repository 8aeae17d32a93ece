package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Fallback selects between the enhanced and baseline providers.
//
// When the enhanced provider is enabled it is tried first; on
// ErrUnavailable or any other failure the same input is retried against
// the baseline provider. Exactly one provider's result is returned. A
// double failure surfaces the baseline error.
type Fallback struct {
	enhanced Provider // nil when not configured
	baseline Provider
	logger   *slog.Logger
}

// NewFallback creates a Fallback. enhanced may be nil, in which case only
// the baseline provider is used.
func NewFallback(enhanced, baseline Provider) *Fallback {
	return &Fallback{
		enhanced: enhanced,
		baseline: baseline,
		logger:   slog.Default(),
	}
}

func (f *Fallback) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if f.enhanced != nil {
		result, err := f.enhanced.Transcribe(ctx, audioPath)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrUnavailable) {
			f.logger.Warn("enhanced transcription unavailable, using baseline", "error", err)
		} else {
			f.logger.Warn("enhanced transcription failed, retrying with baseline", "error", err)
		}
	}

	result, err := f.baseline.Transcribe(ctx, audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("all transcription backends failed: %w", err)
	}
	return result, nil
}
