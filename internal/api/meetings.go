package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/speakinsights/speakinsights/internal/export"
	"github.com/speakinsights/speakinsights/internal/pipeline"
	"github.com/speakinsights/speakinsights/internal/storage"
)

// Processor runs the meeting pipeline for the API layer.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (storage.Meeting, pipeline.Meta, error)
	Regenerate(ctx context.Context, id int64) (storage.Meeting, error)
}

type AppDeps struct {
	Store          *storage.Store
	Pipeline       Processor
	Token          string // empty disables auth
	MaxUploadBytes int64
}

// NewAppHandler returns the REST API handler.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 100 << 20
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/meetings", handleCreateMeeting(deps))
		r.Get("/meetings", handleListMeetings(deps))
		r.Get("/meetings/export", handleExportMeetings(deps))
		r.Get("/meetings/{id}", handleGetMeeting(deps))
		r.Post("/meetings/{id}/regenerate", handleRegenerate(deps))
		r.Get("/meetings/{id}/export", handleExportMeeting(deps))
	})

	return r
}

// meetingResponse is the wire representation of a meeting. Analysis fields
// are null until analysis has succeeded for the meeting.
type meetingResponse struct {
	ID                  int64                      `json:"id"`
	Title               string                     `json:"title"`
	Date                string                     `json:"date"`
	AudioFilename       string                     `json:"audio_filename,omitempty"`
	Transcript          string                     `json:"transcript,omitempty"`
	FormattedTranscript string                     `json:"formatted_transcript,omitempty"`
	Metadata            *storage.TranscriptionMeta `json:"transcription_metadata,omitempty"`
	Summary             *string                    `json:"summary"`
	Sentiment           *string                    `json:"sentiment"`
	SentimentScore      *float64                   `json:"sentiment_score"`
	ActionItems         []string                   `json:"action_items"`
	CreatedAt           string                     `json:"created_at"`
}

func toResponse(m storage.Meeting, includeTranscript bool) meetingResponse {
	resp := meetingResponse{
		ID:             m.ID,
		Title:          m.Title,
		Date:           m.Date.Format(time.RFC3339),
		AudioFilename:  m.AudioFilename,
		Metadata:       m.Metadata,
		Summary:        m.Summary,
		Sentiment:      m.Sentiment,
		SentimentScore: m.SentimentScore,
		ActionItems:    m.ActionItems,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if resp.ActionItems == nil {
		resp.ActionItems = []string{}
	}
	if includeTranscript {
		resp.Transcript = m.Transcript
		resp.FormattedTranscript = m.FormattedTranscript
	}
	return resp
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if _, err := deps.Store.CountMeetings(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func handleCreateMeeting(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		defer r.Body.Close()

		// Buffer small parts in memory, spill large audio to disk.
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			if errors.As(err, new(*http.MaxBytesError)) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error",
					"upload exceeds %d bytes", deps.MaxUploadBytes)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file is required")
			return
		}
		defer file.Close()

		meeting, meta, err := deps.Pipeline.Process(r.Context(), pipeline.Request{
			Title:    r.FormValue("title"),
			Filename: header.Filename,
			Audio:    file,
		})
		if err != nil {
			writePipelineError(w, err)
			return
		}

		resp := toResponse(meeting, true)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"meeting":              resp,
			"transcription_method": meta.TranscriptionMethod,
			"analysis_pending":     meta.AnalysisErr != nil,
		})
	}
}

func handleListMeetings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		meetings, err := deps.Store.ListMeetings(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list meetings: %v", err)
			return
		}
		total, err := deps.Store.CountMeetings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count meetings: %v", err)
			return
		}

		// Transcripts are omitted from listings; fetch one meeting for the
		// full text.
		items := make([]meetingResponse, 0, len(meetings))
		for _, m := range meetings {
			items = append(items, toResponse(m, false))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"meetings": items,
			"total":    total,
		})
	}
}

func handleGetMeeting(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingID(w, r)
		if !ok {
			return
		}

		m, err := deps.Store.GetMeeting(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "meeting not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get meeting: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toResponse(m, true))
	}
}

func handleRegenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingID(w, r)
		if !ok {
			return
		}

		m, err := deps.Pipeline.Regenerate(r.Context(), id)
		if err != nil {
			writePipelineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toResponse(m, true))
	}
}

func handleExportMeeting(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := meetingID(w, r)
		if !ok {
			return
		}

		m, err := deps.Store.GetMeeting(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "meeting not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get meeting: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=meeting_%d.xlsx", m.ID))
		if err := export.WriteMeeting(w, m); err != nil {
			// Headers are already gone; log-and-abort is all that is left.
			return
		}
	}
}

func handleExportMeetings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 1000, 10000)
		meetings, err := deps.Store.ListMeetings(limit, 0)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list meetings: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename=meetings.xlsx")
		if err := export.WriteMeetings(w, meetings); err != nil {
			return
		}
	}
}

// writePipelineError maps a pipeline error kind to an HTTP response.
func writePipelineError(w http.ResponseWriter, err error) {
	switch pipeline.KindOf(err) {
	case pipeline.KindValidation:
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case pipeline.KindNotFound:
		httpError(w, http.StatusNotFound, "not_found", "meeting not found")
	case pipeline.KindTranscription:
		httpError(w, http.StatusBadGateway, "transcription_error", "%v", err)
	case pipeline.KindAnalysis:
		httpError(w, http.StatusBadGateway, "analysis_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func meetingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid meeting id")
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
