package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/speakinsights/speakinsights/internal/storage"
)

const (
	defaultTimeout    = 10 * time.Second
	deliveryMaxElapse = 30 * time.Second
)

// Notifier posts processed meetings to an external webhook (typically an
// n8n workflow). Delivery is best effort: failures are retried with
// backoff, then logged and dropped.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Notifier posting to url.
func New(url string) *Notifier {
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
}

// payload is the JSON body delivered to the webhook.
type payload struct {
	MeetingID   int64    `json:"meeting_id"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Summary     string   `json:"summary,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	ActionItems []string `json:"action_items"`
	Analyzed    bool     `json:"analyzed"`
}

// MeetingProcessed delivers the meeting to the webhook, retrying transient
// failures. It never returns an error; the pipeline outcome must not
// depend on an external automation endpoint.
func (n *Notifier) MeetingProcessed(ctx context.Context, m storage.Meeting) {
	p := payload{
		MeetingID:   m.ID,
		Title:       m.Title,
		Date:        m.Date.Format(time.RFC3339),
		ActionItems: m.ActionItems,
		Analyzed:    m.HasAnalysis(),
	}
	if m.Summary != nil {
		p.Summary = *m.Summary
	}
	if m.Sentiment != nil {
		p.Sentiment = *m.Sentiment
	}
	if p.ActionItems == nil {
		p.ActionItems = []string{}
	}

	body, err := json.Marshal(p)
	if err != nil {
		n.logger.Error("webhook payload marshal failed", "meeting_id", m.ID, "error", err)
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = deliveryMaxElapse

	err = backoff.Retry(func() error {
		return n.deliver(ctx, body)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		n.logger.Warn("webhook delivery failed", "meeting_id", m.ID, "url", n.url, "error", err)
		return
	}
	n.logger.Debug("webhook delivered", "meeting_id", m.ID)
}

func (n *Notifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("webhook rejected payload: %d", resp.StatusCode))
	}
	return nil
}
