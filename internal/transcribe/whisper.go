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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Whisper is the baseline transcription provider. It talks to a local
// whisper.cpp-compatible inference server over HTTP. No speaker
// information is produced.
type Whisper struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewWhisper creates a baseline provider targeting the given server URL.
// model selects the loaded model on servers that host more than one;
// empty means the server default.
func NewWhisper(baseURL, model string, timeout time.Duration) *Whisper {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Whisper{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// inferenceResponse mirrors the JSON returned by POST /inference.
type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error,omitempty"`
}

// Transcribe uploads the audio file and returns the plain transcript.
// Transient transport failures are retried with exponential backoff; a
// server that is down from the first attempt yields ErrUnavailable.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("reading audio file: %w", err)
	}

	body, contentType, err := w.buildForm(filepath.Base(audioPath), audio)
	if err != nil {
		return Result{}, err
	}

	var resp inferenceResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/inference", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)

		httpResp, err := w.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("whisper server status %d", httpResp.StatusCode)
		}
		if httpResp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("whisper server status %d", httpResp.StatusCode))
		}

		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return Result{}, fmt.Errorf("baseline transcription: %w", err)
	}

	if resp.Error != "" {
		return Result{}, fmt.Errorf("baseline transcription: %s", resp.Error)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, fmt.Errorf("baseline transcription: empty transcript")
	}

	result := Result{
		Text:     text,
		Language: resp.Language,
		Method:   MethodBaseline,
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return result, nil
}

func (w *Whisper) buildForm(filename string, audio []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, "", fmt.Errorf("writing audio to form: %w", err)
	}

	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("writing form field: %w", err)
	}
	if w.model != "" {
		if err := mw.WriteField("model", w.model); err != nil {
			return nil, "", fmt.Errorf("writing form field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
