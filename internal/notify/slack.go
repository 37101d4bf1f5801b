package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Send posts to the webhook. Slack has no message threading here, so the id
// returned is the one the caller chose.
func (s *Slack) Send(ctx context.Context, msg Message) (string, error) {
	if s == nil || s.Webhook == "" {
		return "", errors.New("slack disabled")
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + msg.Subject + "*\n" + msg.Text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return msg.MessageID, nil
}
