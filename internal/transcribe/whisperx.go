package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WhisperX is the enhanced transcription provider. It talks to a WhisperX
// sidecar service that runs voice-activity detection, word alignment and
// speaker diarization in its own process. The sidecar may legitimately be
// absent; Transcribe then fails with ErrUnavailable and the caller falls
// back to the baseline provider.
type WhisperX struct {
	baseURL     string
	diarize     bool
	minSpeakers int
	maxSpeakers int
	registry    *Registry
	httpClient  *http.Client
}

// WhisperXOptions configures the enhanced provider.
type WhisperXOptions struct {
	BaseURL     string
	Diarize     bool
	MinSpeakers int
	MaxSpeakers int
	Timeout     time.Duration
}

// NewWhisperX creates an enhanced provider. registry caches the sidecar
// availability probe; pass a process-wide instance.
func NewWhisperX(opts WhisperXOptions, registry *Registry) *WhisperX {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &WhisperX{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		diarize:     opts.Diarize,
		minSpeakers: opts.MinSpeakers,
		maxSpeakers: opts.MaxSpeakers,
		registry:    registry,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping reports whether the sidecar responds to GET /health with 200.
func (x *WhisperX) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// transcribeResponse mirrors the JSON returned by POST /transcribe.
type transcribeResponse struct {
	Transcript          string    `json:"transcript"`
	FormattedTranscript string    `json:"formatted_transcript"`
	Segments            []Segment `json:"segments"`
	Words               []Word    `json:"word_level_data"`
	Speakers            []string  `json:"speakers"`
	Language            string    `json:"language"`
	Error               string    `json:"error,omitempty"`
}

// Transcribe uploads the audio file to the sidecar and returns the
// diarized result. The availability probe runs at most once per process;
// a sidecar that was down at first use stays marked unavailable.
func (x *WhisperX) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if !x.registry.Once("whisperx", func() bool { return x.Ping(ctx) }) {
		return Result{}, fmt.Errorf("whisperx sidecar at %s: %w", x.baseURL, ErrUnavailable)
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("reading audio file: %w", err)
	}

	body, contentType, err := x.buildForm(filepath.Base(audioPath), audio)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	httpResp, err := x.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("whisperx request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("whisperx server status %d", httpResp.StatusCode)
	}

	var resp transcribeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Result{}, fmt.Errorf("decoding whisperx response: %w", err)
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("whisperx: %s", resp.Error)
	}

	text := strings.TrimSpace(resp.Transcript)
	if text == "" {
		return Result{}, fmt.Errorf("whisperx: empty transcript")
	}

	return Result{
		Text:      text,
		Formatted: strings.TrimSpace(resp.FormattedTranscript),
		Segments:  resp.Segments,
		Words:     resp.Words,
		Speakers:  resp.Speakers,
		Language:  resp.Language,
		Method:    MethodEnhanced,
	}, nil
}

func (x *WhisperX) buildForm(filename string, audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, "", fmt.Errorf("writing audio to form: %w", err)
	}

	fields := map[string]string{
		"diarize": strconv.FormatBool(x.diarize),
	}
	if x.minSpeakers > 0 {
		fields["min_speakers"] = strconv.Itoa(x.minSpeakers)
	}
	if x.maxSpeakers > 0 {
		fields["max_speakers"] = strconv.Itoa(x.maxSpeakers)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
