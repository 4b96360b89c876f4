package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type webhookPayload struct {
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Text       string    `json:"text"`
	Recipients []string  `json:"recipients,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WebhookSender posts alerts as JSON. The text field keeps Slack style
// incoming webhooks working.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSender) Send(ctx context.Context, recipients []string, subject, body string) error {
	if s.url == "" {
		return fmt.Errorf("missing webhook_url")
	}
	payload, err := json.Marshal(webhookPayload{
		Title:      subject,
		Message:    body,
		Text:       fmt.Sprintf("*%s*\n%s", subject, body),
		Recipients: recipients,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}
	return nil
}
