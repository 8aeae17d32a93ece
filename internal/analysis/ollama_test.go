package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/speakinsights/speakinsights/internal/ollama"
)

type fakeChatter struct {
	running    bool
	structured string // returned for calls that request a JSON schema
	plain      string // returned for free-form calls
	err        error
	calls      int
}

func (f *fakeChatter) IsRunning(ctx context.Context) bool { return f.running }

func (f *fakeChatter) Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if jsonSchema != nil {
		return f.structured, nil
	}
	return f.plain, nil
}

func TestOllamaAnalyze(t *testing.T) {
	chatter := &fakeChatter{
		running: true,
		structured: `{
			"summary": "The team agreed on the release plan.",
			"sentiment": "positive",
			"sentiment_score": 0.88,
			"action_items": ["Ship the release on Friday ", "ship the release on friday", "Write release notes"]
		}`,
	}

	a := NewOllama(chatter, "phi3.5", 5, 10*time.Second)
	got, err := a.Analyze(context.Background(), "We agreed to ship on Friday and write release notes.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got.Summary != "The team agreed on the release plan." {
		t.Errorf("Summary = %q", got.Summary)
	}
	if got.Sentiment != SentimentPositive {
		t.Errorf("Sentiment = %q, want POSITIVE (normalized)", got.Sentiment)
	}
	if got.SentimentScore != 0.88 {
		t.Errorf("SentimentScore = %v", got.SentimentScore)
	}
	// Duplicate item collapsed case-insensitively.
	if len(got.ActionItems) != 2 {
		t.Errorf("ActionItems = %v, want 2 deduplicated items", got.ActionItems)
	}
}

func TestOllamaAnalyzeNotRunning(t *testing.T) {
	a := NewOllama(&fakeChatter{running: false}, "phi3.5", 5, time.Second)
	_, err := a.Analyze(context.Background(), "transcript text")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestOllamaAnalyzeChatFailure(t *testing.T) {
	a := NewOllama(&fakeChatter{running: true, err: errors.New("connection reset")}, "phi3.5", 5, time.Second)
	_, err := a.Analyze(context.Background(), "transcript text")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestOllamaAnalyzeInvalidLabelNormalized(t *testing.T) {
	chatter := &fakeChatter{
		running:    true,
		structured: `{"summary": "s", "sentiment": "ecstatic", "sentiment_score": 2.5, "action_items": []}`,
	}

	a := NewOllama(chatter, "phi3.5", 5, time.Second)
	got, err := a.Analyze(context.Background(), "Plain discussion, nothing else.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Sentiment != SentimentNeutral {
		t.Errorf("Sentiment = %q, want NEUTRAL for unknown label", got.Sentiment)
	}
	if got.SentimentScore != 1 {
		t.Errorf("SentimentScore = %v, want clamped to 1", got.SentimentScore)
	}
}

func TestOllamaAnalyzeCondensesLongTranscript(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < maxPromptChars*2 {
		sb.WriteString("The group walked through the incident timeline in considerable detail. ")
	}

	chatter := &fakeChatter{
		running:    true,
		plain:      "Partial chunk summary.",
		structured: `{"summary": "Incident review.", "sentiment": "NEUTRAL", "sentiment_score": 0.6, "action_items": []}`,
	}

	a := NewOllama(chatter, "phi3.5", 5, 10*time.Second)
	got, err := a.Analyze(context.Background(), sb.String())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Summary != "Incident review." {
		t.Errorf("Summary = %q", got.Summary)
	}
	if chatter.calls < 3 {
		t.Errorf("expected chunked condensing calls before the final pass, got %d chat calls", chatter.calls)
	}
}

func TestFallbackAnalyzerUsesLocalOnRemoteFailure(t *testing.T) {
	remote := NewOllama(&fakeChatter{running: false}, "phi3.5", 5, time.Second)
	local := NewLocal(5)

	f := NewFallback(remote, local, true)
	got, err := f.Analyze(context.Background(), "We will publish the roadmap next week.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Summary == "" || !ValidLabel(got.Sentiment) {
		t.Errorf("local fallback produced incomplete result: %+v", got)
	}
}

func TestFallbackAnalyzerSurfacesErrorWhenDisabled(t *testing.T) {
	remote := NewOllama(&fakeChatter{running: false}, "phi3.5", 5, time.Second)

	f := NewFallback(remote, NewLocal(5), false)
	_, err := f.Analyze(context.Background(), "Some transcript.")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable surfaced", err)
	}
}

func TestFallbackAnalyzerNoRemote(t *testing.T) {
	f := NewFallback(nil, NewLocal(5), true)
	got, err := f.Analyze(context.Background(), "We will publish the roadmap next week.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Summary == "" {
		t.Error("expected local analysis result")
	}
}
