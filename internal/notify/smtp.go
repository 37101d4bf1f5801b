package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

func NewSMTP(host string, port int, username, password, from string) *SMTP {
	if host == "" || from == "" {
		return nil
	}
	if port == 0 {
		port = 587
	}
	return &SMTP{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		FromName: "Pulsewatch",
		Timeout:  15 * time.Second,
	}
}

// buildMessage renders headers and a plain text body. Threading headers are
// only set when ids are known.
func (p *SMTP) buildMessage(msg Message, now time.Time) []byte {
	from := p.From
	if p.FromName != "" {
		from = fmt.Sprintf("%s <%s>", p.FromName, p.From)
	}
	headers := map[string]string{
		"From":         from,
		"To":           strings.Join(msg.To, ", "),
		"Subject":      mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date":         now.Format(time.RFC1123Z),
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=utf-8",
	}
	if msg.MessageID != "" {
		headers["Message-ID"] = msg.MessageID
	}
	if msg.InReplyTo != "" {
		headers["In-Reply-To"] = msg.InReplyTo
		headers["References"] = msg.InReplyTo
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + ": " + headers[k] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return []byte(b.String())
}

func (p *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	var (
		conn net.Conn
		err  error
	)
	if p.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: &d, Config: &tls.Config{ServerName: p.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return "", fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, p.Host)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok && p.Port != 465 {
		if err := client.StartTLS(&tls.Config{ServerName: p.Host}); err != nil {
			return "", fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if p.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", p.Username, p.Password, p.Host)); err != nil {
				return "", fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := client.Mail(p.From); err != nil {
		return "", fmt.Errorf("smtp mail: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return "", fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(p.buildMessage(msg, time.Now())); err != nil {
		return "", fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("smtp close data: %w", err)
	}
	_ = client.Quit()
	return msg.MessageID, nil
}
