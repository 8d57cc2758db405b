package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
)

// Webhook posts Slack-compatible {"text": ...} payloads. Each delivery is
// retried with backoff inside a circuit breaker.
type Webhook struct {
	URL      string
	Client   *http.Client
	attempts uint
	cb       *gobreaker.CircuitBreaker
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		URL:      url,
		Client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
		cb:       newBreaker("webhook", 5),
	}
}

func newBreaker(name string, consecutiveFailures uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	})
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (w *Webhook) Deliver(ctx context.Context, ev Event) error {
	if w == nil || w.URL == "" {
		return errors.New("webhook disabled")
	}
	body, err := json.Marshal(webhookPayload{Text: "*" + ev.Title() + "*\n" + ev.Text()})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	_, err = w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(retry.BackOffDelay),
		)
		return nil, r.Do(func() error {
			return w.post(ctx, body)
		})
	})
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
