package notify

import "go.uber.org/zap"

// Settings selects and configures transports. Empty fields disable the
// corresponding transport.
type Settings struct {
	SlackWebhook string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	FromName     string

	SendGridAPIKey string
}

// FromConfig builds the configured transports, each behind a breaker. It
// returns nil when nothing is configured, which disables alerting.
func FromConfig(s Settings, log *zap.Logger) Transport {
	var ts Multi
	if sl := NewSlack(s.SlackWebhook); sl != nil {
		ts = append(ts, NewBreaker("slack", sl, log))
	}
	if sm := NewSMTP(s.SMTPHost, s.SMTPPort, s.SMTPUsername, s.SMTPPassword, s.From); sm != nil {
		if s.FromName != "" {
			sm.FromName = s.FromName
		}
		ts = append(ts, NewBreaker("smtp", sm, log))
	}
	if sg := NewSendGrid(s.SendGridAPIKey, s.From, s.FromName, ""); sg != nil {
		ts = append(ts, NewBreaker("sendgrid", sg, log))
	}
	switch len(ts) {
	case 0:
		return nil
	case 1:
		return ts[0]
	default:
		return ts
	}
}
