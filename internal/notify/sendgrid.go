package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGrid struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGrid returns nil when no API key is configured. endpoint overrides
// the API base URL and is empty in production.
func NewSendGrid(apiKey, from, fromName, endpoint string) *SendGrid {
	if apiKey == "" || from == "" {
		return nil
	}
	c := sendgrid.NewSendClient(apiKey)
	if endpoint != "" {
		c.Request.BaseURL = endpoint
	}
	return &SendGrid{client: c, from: from, fromName: fromName}
}

func (p *SendGrid) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(p.fromName, p.from))
	m.Subject = msg.Subject

	pers := mail.NewPersonalization()
	for _, to := range msg.To {
		pers.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(pers)
	m.AddContent(mail.NewContent("text/plain", msg.Text))

	headers := map[string]string{}
	if msg.MessageID != "" {
		headers["Message-ID"] = msg.MessageID
	}
	if msg.InReplyTo != "" {
		headers["In-Reply-To"] = msg.InReplyTo
		headers["References"] = msg.InReplyTo
	}
	if len(headers) > 0 {
		m.Headers = headers
	}

	resp, err := p.client.SendWithContext(ctx, m)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid api error: %d", resp.StatusCode)
	}
	id := msg.MessageID
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 && id == "" {
		id = ids[0]
	}
	return id, nil
}
