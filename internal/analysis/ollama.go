package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/speakinsights/speakinsights/internal/ollama"
)

const (
	defaultAnalysisTimeout = 90 * time.Second
	// maxPromptChars bounds the transcript text sent in one chat call.
	maxPromptChars = 8000
)

// Chatter is the interface for chat completion via Ollama.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
	IsRunning(ctx context.Context) bool
}

// Ollama analyzes transcripts with a local LLM reached over HTTP. It is
// optional: when the server is unreachable or the call times out the
// error wraps ErrUnavailable so the caller can fall back to the Local
// analyzer.
type Ollama struct {
	client         Chatter
	model          string
	maxActionItems int
	timeout        time.Duration
}

// NewOllama creates an Ollama analyzer using the given client and model.
func NewOllama(client Chatter, model string, maxActionItems int, timeout time.Duration) *Ollama {
	if maxActionItems <= 0 {
		maxActionItems = DefaultMaxActionItems
	}
	if timeout <= 0 {
		timeout = defaultAnalysisTimeout
	}
	return &Ollama{client: client, model: model, maxActionItems: maxActionItems, timeout: timeout}
}

// analysisOutput mirrors the structured JSON requested from the model.
type analysisOutput struct {
	Summary        string   `json:"summary"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore float64  `json:"sentiment_score"`
	ActionItems    []string `json:"action_items"`
}

func (o *Ollama) Analyze(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, fmt.Errorf("empty transcript")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if !o.client.IsRunning(ctx) {
		return Result{}, fmt.Errorf("ollama: %w", ErrUnavailable)
	}

	// Transcripts beyond the prompt budget are condensed chunk by chunk
	// first, so the final pass sees the whole meeting, not a prefix.
	text := transcript
	if len(text) > maxPromptChars {
		condensed, err := o.condense(ctx, text)
		if err != nil {
			return Result{}, err
		}
		text = condensed
	}

	raw, err := o.client.Chat(ctx, o.model, []ollama.Message{
		{
			Role: "system",
			Content: "You are a meeting analyst. Given a meeting transcript, produce a concise summary, " +
				"an overall sentiment (POSITIVE, NEGATIVE or NEUTRAL) with a confidence between 0 and 1, " +
				"and the concrete action items that were committed to, most actionable first.",
		},
		{Role: "user", Content: text},
	}, analysisSchema())
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("ollama analysis timed out: %w", ErrUnavailable)
		}
		return Result{}, fmt.Errorf("ollama analysis: %w: %v", ErrUnavailable, err)
	}

	var out analysisOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Result{}, fmt.Errorf("parsing analysis output: %w", err)
	}

	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return Result{}, fmt.Errorf("analysis output missing summary")
	}

	label := strings.ToUpper(strings.TrimSpace(out.Sentiment))
	if !ValidLabel(label) {
		label = SentimentNeutral
	}
	score := out.SentimentScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	items := normalizeActionItems(out.ActionItems, o.maxActionItems)
	if len(items) == 0 {
		// Models sometimes return prose instead of a list; the marker
		// scan over the raw transcript still yields usable items.
		items = ExtractActionItems(transcript, o.maxActionItems)
	}

	return Result{
		Summary:        summary,
		Sentiment:      label,
		SentimentScore: score,
		ActionItems:    items,
	}, nil
}

// condense summarizes each transcript chunk and joins the partial
// summaries into one text that fits the prompt budget.
func (o *Ollama) condense(ctx context.Context, transcript string) (string, error) {
	chunks := chunkBySentence(transcript, maxPromptChars)

	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		raw, err := o.client.Chat(ctx, o.model, []ollama.Message{
			{Role: "system", Content: "Summarize this portion of a meeting transcript in a few sentences. Keep every commitment and decision."},
			{Role: "user", Content: chunk},
		}, nil)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("ollama analysis timed out: %w", ErrUnavailable)
			}
			return "", fmt.Errorf("condensing chunk %d: %w: %v", i, ErrUnavailable, err)
		}
		parts = append(parts, strings.TrimSpace(raw))
	}
	return strings.Join(parts, " "), nil
}

func analysisSchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"summary":         {Type: "string", Description: "Concise summary covering the whole meeting"},
			"sentiment":       {Type: "string", Description: "One of: POSITIVE, NEGATIVE, NEUTRAL"},
			"sentiment_score": {Type: "number", Description: "Confidence of the sentiment label, 0 to 1"},
			"action_items":    {Type: "array", Description: "Concrete action items, most actionable first"},
		},
		Required: []string{"summary", "sentiment", "sentiment_score", "action_items"},
	}
}
