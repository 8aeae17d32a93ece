package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/speakinsights/speakinsights/internal/pipeline"
	"github.com/speakinsights/speakinsights/internal/storage"
)

// fakePipeline satisfies Processor without running real transcription.
type fakePipeline struct {
	store      *storage.Store
	processErr error
	regenErr   error
}

func (f *fakePipeline) Process(ctx context.Context, req pipeline.Request) (storage.Meeting, pipeline.Meta, error) {
	if f.processErr != nil {
		return storage.Meeting{}, pipeline.Meta{}, f.processErr
	}
	if req.Audio != nil {
		io.Copy(io.Discard, req.Audio)
	}
	summary := "Stubbed summary."
	sentiment := "NEUTRAL"
	score := 0.5
	id, err := f.store.CreateMeeting(storage.Meeting{
		Title:          req.Title,
		Date:           time.Now().UTC(),
		AudioFilename:  req.Filename,
		Transcript:     "stub transcript",
		Summary:        &summary,
		Sentiment:      &sentiment,
		SentimentScore: &score,
		ActionItems:    []string{"Do the thing"},
	})
	if err != nil {
		return storage.Meeting{}, pipeline.Meta{}, err
	}
	m, err := f.store.GetMeeting(id)
	return m, pipeline.Meta{TranscriptionMethod: "baseline"}, err
}

func (f *fakePipeline) Regenerate(ctx context.Context, id int64) (storage.Meeting, error) {
	if f.regenErr != nil {
		return storage.Meeting{}, f.regenErr
	}
	if err := f.store.UpdateAnalysis(id, "Regenerated.", "POSITIVE", 0.8, []string{"Follow up"}); err != nil {
		return storage.Meeting{}, err
	}
	return f.store.GetMeeting(id)
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *storage.Store, *fakePipeline) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fp := &fakePipeline{store: store}
	srv := httptest.NewServer(NewAppHandler(AppDeps{
		Store:          store,
		Pipeline:       fp,
		Token:          token,
		MaxUploadBytes: 1 << 20,
	}))
	t.Cleanup(srv.Close)
	return srv, store, fp
}

func multipartUpload(t *testing.T, title, filename string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", title); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(audio)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestCreateMeeting(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	body, contentType := multipartUpload(t, "Standup", "standup.mp3", []byte("audio"))
	resp, err := http.Post(srv.URL+"/api/meetings", contentType, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		Meeting             meetingResponse `json:"meeting"`
		TranscriptionMethod string          `json:"transcription_method"`
		AnalysisPending     bool            `json:"analysis_pending"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Meeting.ID == 0 || got.Meeting.Title != "Standup" {
		t.Errorf("meeting = %+v", got.Meeting)
	}
	if got.Meeting.Transcript == "" {
		t.Error("create response should include the transcript")
	}
	if got.TranscriptionMethod != "baseline" {
		t.Errorf("transcription_method = %q", got.TranscriptionMethod)
	}
	if got.AnalysisPending {
		t.Error("analysis_pending should be false")
	}
}

func TestCreateMeetingMissingFile(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "No audio")
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/meetings", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateMeetingPipelineErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &pipeline.Error{Kind: pipeline.KindValidation, Err: errors.New("bad title")}, http.StatusBadRequest},
		{"transcription", &pipeline.Error{Kind: pipeline.KindTranscription, Err: errors.New("backends down")}, http.StatusBadGateway},
		{"storage", &pipeline.Error{Kind: pipeline.KindStorage, Err: errors.New("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, fp := newTestServer(t, "")
			fp.processErr = tt.err

			body, contentType := multipartUpload(t, "t", "a.mp3", []byte("x"))
			resp, err := http.Post(srv.URL+"/api/meetings", contentType, body)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			var envelope struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				t.Fatalf("decoding error envelope: %v", err)
			}
			if envelope.Error.Message == "" || envelope.Error.Type == "" {
				t.Errorf("error envelope = %+v", envelope)
			}
		})
	}
}

func TestListMeetings(t *testing.T) {
	srv, store, _ := newTestServer(t, "")

	for i := 0; i < 3; i++ {
		if _, err := store.CreateMeeting(storage.Meeting{
			Title:      fmt.Sprintf("Meeting %d", i),
			Transcript: "secret transcript text",
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/meetings?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Meetings []map[string]any `json:"meetings"`
		Total    int              `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Total != 3 {
		t.Errorf("total = %d", got.Total)
	}
	if len(got.Meetings) != 2 {
		t.Fatalf("got %d meetings, want 2", len(got.Meetings))
	}
	// Most recent first.
	if got.Meetings[0]["title"] != "Meeting 2" {
		t.Errorf("first = %v", got.Meetings[0]["title"])
	}
	// Listings never carry transcripts.
	if _, ok := got.Meetings[0]["transcript"]; ok {
		t.Error("list response leaked the transcript")
	}
}

func TestGetMeeting(t *testing.T) {
	srv, store, _ := newTestServer(t, "")

	id, err := store.CreateMeeting(storage.Meeting{Title: "Solo", Transcript: "the full text"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/meetings/%d", srv.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got meetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Transcript != "the full text" {
		t.Errorf("Transcript = %q", got.Transcript)
	}
	if got.Summary != nil {
		t.Errorf("Summary = %v, want null before analysis", *got.Summary)
	}
}

func TestGetMeetingNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/meetings/99")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetMeetingInvalidID(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/meetings/abc")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRegenerate(t *testing.T) {
	srv, store, _ := newTestServer(t, "")

	id, err := store.CreateMeeting(storage.Meeting{Title: "Pending", Transcript: "text"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/api/meetings/%d/regenerate", srv.URL, id), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got meetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Summary == nil || *got.Summary != "Regenerated." {
		t.Errorf("Summary = %v", got.Summary)
	}
}

func TestRegenerateNotFound(t *testing.T) {
	srv, _, fp := newTestServer(t, "")
	fp.regenErr = &pipeline.Error{Kind: pipeline.KindNotFound, Err: errors.New("gone")}

	resp, err := http.Post(srv.URL+"/api/meetings/5/regenerate", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestExportMeeting(t *testing.T) {
	srv, store, _ := newTestServer(t, "")

	id, err := store.CreateMeeting(storage.Meeting{Title: "Exportable", Transcript: "text"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/meetings/%d/export", srv.URL, id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		t.Errorf("empty export body (err=%v)", err)
	}
}

func TestBearerAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, "sekrit")

	// Health stays open.
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	// API requires the token.
	resp, err = http.Get(srv.URL + "/api/meetings")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/meetings", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("status = %q", got["status"])
	}
}
