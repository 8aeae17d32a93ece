package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/speakinsights/speakinsights/internal/analysis"
	"github.com/speakinsights/speakinsights/internal/storage"
	"github.com/speakinsights/speakinsights/internal/transcribe"
)

// allowedExtensions are the audio container formats accepted for upload.
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".webm": true,
	".ogg":  true,
	".flac": true,
}

// MeetingStore abstracts the persistence operations the pipeline needs.
type MeetingStore interface {
	CreateMeeting(m storage.Meeting) (int64, error)
	GetMeeting(id int64) (storage.Meeting, error)
	UpdateAnalysis(id int64, summary, sentiment string, score float64, actionItems []string) error
}

// Transcriber converts a saved audio file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error)
}

// Analyzer derives summary, sentiment and action items from a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (analysis.Result, error)
}

// Notifier is told about every successfully persisted meeting. Delivery is
// best effort and never affects the pipeline outcome.
type Notifier interface {
	MeetingProcessed(ctx context.Context, m storage.Meeting)
}

// Request is one audio upload to process.
type Request struct {
	Title    string
	Filename string // client-supplied name, used only for its extension
	Audio    io.Reader
}

// Meta captures diagnostic information about one processing run.
type Meta struct {
	TranscriptionMethod string
	AnalysisErr         error // non-nil when the meeting was stored without analysis
	DurationMs          int64
}

// Orchestrator runs the upload pipeline: save audio, transcribe, analyze,
// persist. Transcription failure aborts the run with nothing stored;
// analysis failure does not, the meeting is stored with empty analysis
// fields and can be regenerated later.
type Orchestrator struct {
	store       MeetingStore
	transcriber Transcriber
	analyzer    Analyzer
	notifier    Notifier // nil when no webhook is configured
	audioDir    string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. notifier may be nil.
func NewOrchestrator(store MeetingStore, transcriber Transcriber, analyzer Analyzer, notifier Notifier, audioDir string) *Orchestrator {
	return &Orchestrator{
		store:       store,
		transcriber: transcriber,
		analyzer:    analyzer,
		notifier:    notifier,
		audioDir:    audioDir,
		logger:      slog.Default(),
	}
}

// Process runs the full pipeline for one upload.
func (o *Orchestrator) Process(ctx context.Context, req Request) (storage.Meeting, Meta, error) {
	start := time.Now()
	var meta Meta
	defer func() {
		meta.DurationMs = time.Since(start).Milliseconds()
	}()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return storage.Meeting{}, meta, wrapErr(KindValidation, fmt.Errorf("title is required"))
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedExtensions[ext] {
		return storage.Meeting{}, meta, wrapErr(KindValidation, fmt.Errorf("unsupported audio format %q", ext))
	}
	if req.Audio == nil {
		return storage.Meeting{}, meta, wrapErr(KindValidation, fmt.Errorf("audio file is required"))
	}

	audioName, audioPath, err := o.saveAudio(req.Filename, req.Audio)
	if err != nil {
		return storage.Meeting{}, meta, wrapErr(KindStorage, err)
	}

	tr, err := o.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return storage.Meeting{}, meta, wrapErr(KindTranscription, err)
	}
	meta.TranscriptionMethod = tr.Method

	m := storage.Meeting{
		Title:               title,
		Date:                time.Now().UTC(),
		AudioFilename:       audioName,
		Transcript:          tr.Text,
		FormattedTranscript: tr.Formatted,
		Metadata: &storage.TranscriptionMeta{
			Method:    tr.Method,
			Language:  tr.Language,
			Speakers:  tr.Speakers,
			WordCount: len(strings.Fields(tr.Text)),
		},
	}

	result, err := o.analyzer.Analyze(ctx, tr.Text)
	if err != nil {
		// The transcript is still worth keeping. Analysis fields stay
		// empty until a regenerate call succeeds.
		o.logger.Warn("analysis failed, storing meeting without analysis", "title", title, "error", err)
		meta.AnalysisErr = err
		m.ActionItems = []string{}
	} else {
		m.Summary = &result.Summary
		m.Sentiment = &result.Sentiment
		m.SentimentScore = &result.SentimentScore
		m.ActionItems = result.ActionItems
	}

	id, err := o.store.CreateMeeting(m)
	if err != nil {
		return storage.Meeting{}, meta, wrapErr(KindStorage, fmt.Errorf("storing meeting: %w", err))
	}

	stored, err := o.store.GetMeeting(id)
	if err != nil {
		return storage.Meeting{}, meta, wrapErr(KindStorage, fmt.Errorf("loading stored meeting %d: %w", id, err))
	}

	if o.notifier != nil {
		o.notifier.MeetingProcessed(ctx, stored)
	}

	o.logger.Info("meeting processed",
		"id", stored.ID,
		"method", meta.TranscriptionMethod,
		"analyzed", stored.HasAnalysis(),
	)
	return stored, meta, nil
}

// Regenerate re-runs analysis over the stored transcript and persists the
// result. Unlike Process, an analysis failure here is terminal.
func (o *Orchestrator) Regenerate(ctx context.Context, id int64) (storage.Meeting, error) {
	m, err := o.store.GetMeeting(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Meeting{}, wrapErr(KindNotFound, fmt.Errorf("meeting %d: %w", id, err))
		}
		return storage.Meeting{}, wrapErr(KindStorage, err)
	}

	result, err := o.analyzer.Analyze(ctx, m.Transcript)
	if err != nil {
		return storage.Meeting{}, wrapErr(KindAnalysis, fmt.Errorf("regenerating analysis for meeting %d: %w", id, err))
	}

	if err := o.store.UpdateAnalysis(id, result.Summary, result.Sentiment, result.SentimentScore, result.ActionItems); err != nil {
		return storage.Meeting{}, wrapErr(KindStorage, err)
	}

	return o.store.GetMeeting(id)
}

// saveAudio writes the upload under a fresh name so concurrent uploads of
// the same file never collide. Returns the stored filename and full path.
func (o *Orchestrator) saveAudio(filename string, r io.Reader) (string, string, error) {
	if err := os.MkdirAll(o.audioDir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating audio dir: %w", err)
	}

	base := filepath.Base(filename)
	name := uuid.New().String() + "_" + base
	path := filepath.Join(o.audioDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("creating audio file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("writing audio file: %w", err)
	}
	return name, path, nil
}
