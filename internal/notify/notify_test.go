package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

type fakeTransport struct {
	id    string
	err   error
	calls int
}

func (f *fakeTransport) Send(context.Context, Message) (string, error) {
	f.calls++
	return f.id, f.err
}

func TestMulti_AllOK(t *testing.T) {
	a, b := &fakeTransport{id: "a"}, &fakeTransport{id: "b"}
	id, err := Multi{a, nil, b}.Send(context.Background(), Message{})
	if err != nil || id != "a" {
		t.Fatalf("got %q %v", id, err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("every transport must be called")
	}
}

func TestMulti_PartialAndTotalFailure(t *testing.T) {
	boom := errors.New("boom")
	id, err := Multi{&fakeTransport{err: boom}, &fakeTransport{id: "ok"}}.Send(context.Background(), Message{})
	var pe *PartialError
	if !errors.As(err, &pe) || id != "ok" {
		t.Fatalf("want partial error with id, got %q %v", id, err)
	}
	if !Delivered(err) || !errors.Is(err, boom) {
		t.Fatalf("partial delivery should count as delivered and wrap the cause")
	}

	_, err = Multi{&fakeTransport{err: boom}, &fakeTransport{err: errors.New("bang")}}.Send(context.Background(), Message{})
	if err == nil || Delivered(err) {
		t.Fatalf("want total failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "bang") {
		t.Fatalf("errors should be combined: %v", err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	f := &fakeTransport{err: errors.New("down")}
	b := NewBreaker("test", f, nil)
	for i := 0; i < 3; i++ {
		_, _ = b.Send(context.Background(), Message{})
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("want open breaker, got %s", b.State())
	}
	_, err := b.Send(context.Background(), Message{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("want ErrOpenState, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("open breaker must not call through, calls=%d", f.calls)
	}
}

func TestFromConfig(t *testing.T) {
	if FromConfig(Settings{}, nil) != nil {
		t.Fatal("no settings must disable alerting")
	}
	if _, ok := FromConfig(Settings{SlackWebhook: "http://hook"}, nil).(*Breaker); !ok {
		t.Fatal("single transport should be returned behind a breaker")
	}
	m, ok := FromConfig(Settings{SlackWebhook: "http://hook", SMTPHost: "mail", From: "a@b"}, nil).(Multi)
	if !ok || len(m) != 2 {
		t.Fatalf("want multi of 2, got %#v", m)
	}
}

func TestSMTP_BuildMessageThreading(t *testing.T) {
	p := NewSMTP("mail.local", 0, "", "", "alerts@pulsewatch.local")
	if p.Port != 587 {
		t.Fatalf("default port: %d", p.Port)
	}
	raw := string(p.buildMessage(Message{
		Subject:   "Recovered: api",
		Text:      "line1\nline2",
		To:        []string{"ops@x", "dev@x"},
		MessageID: "<r@pulsewatch>",
		InReplyTo: "<o@pulsewatch>",
	}, time.Unix(0, 0).UTC()))

	for _, want := range []string{
		"In-Reply-To: <o@pulsewatch>\r\n",
		"References: <o@pulsewatch>\r\n",
		"Message-ID: <r@pulsewatch>\r\n",
		"To: ops@x, dev@x\r\n",
		"\r\n\r\nline1\r\nline2",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}

	raw = string(p.buildMessage(Message{Subject: "s", Text: "t", To: []string{"a@b"}}, time.Now()))
	if strings.Contains(raw, "In-Reply-To") {
		t.Fatal("no threading headers without an id")
	}
}

func TestSMTP_BuildMessageEncodesSubject(t *testing.T) {
	p := NewSMTP("mail.local", 0, "", "", "alerts@pulsewatch.local")
	raw := string(p.buildMessage(Message{
		Subject: "🔴 Outage: api",
		Text:    "down",
		To:      []string{"ops@x"},
	}, time.Unix(0, 0).UTC()))

	head, _, _ := strings.Cut(raw, "\r\n\r\n")
	if !strings.Contains(head, "Subject: =?utf-8?q?") {
		t.Fatalf("subject not encoded:\n%s", head)
	}
	if strings.Contains(head, "🔴") {
		t.Fatalf("raw utf-8 in headers:\n%s", head)
	}
	for _, r := range head {
		if r > 127 {
			t.Fatalf("non-ascii header byte %q", r)
		}
	}
}

// fakeSMTP accepts one plain SMTP session and captures the DATA payload.
func fakeSMTP(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
		write("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 ok")
			case cmd == "DATA":
				write("354 go ahead")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				out <- b.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 ok")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSMTP_SendAgainstFakeServer(t *testing.T) {
	addr, data := fakeSMTP(t)
	host, port, _ := net.SplitHostPort(addr)
	p := NewSMTP(host, 0, "", "", "alerts@pulsewatch.local")
	p.Port, _ = strconv.Atoi(port)

	id, err := p.Send(context.Background(), Message{Subject: "Outage: api", Text: "down", To: []string{"ops@x"}, MessageID: "<o@p>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "<o@p>" {
		t.Fatalf("id %q", id)
	}
	select {
	case got := <-data:
		if !strings.Contains(got, "Subject: Outage: api") {
			t.Fatalf("unexpected data: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no DATA received")
	}

	if _, err := p.Send(context.Background(), Message{Subject: "x"}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("want ErrNoRecipients, got %v", err)
	}
}

func TestSendGrid_SendsThreadingHeaders(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]any
		auth string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	sg := NewSendGrid("SG.key", "alerts@pulsewatch.local", "Pulsewatch", ts.URL+"/v3/mail/send")
	id, err := sg.Send(context.Background(), Message{
		Subject: "Recovered: api", Text: "ok", To: []string{"ops@x"},
		MessageID: "<r@p>", InReplyTo: "<o@p>",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "<r@p>" {
		t.Fatalf("want caller id kept, got %q", id)
	}
	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer SG.key" {
		t.Fatalf("auth header %q", auth)
	}
	headers, _ := body["headers"].(map[string]any)
	if headers["In-Reply-To"] != "<o@p>" || headers["References"] != "<o@p>" {
		t.Fatalf("threading headers missing: %v", body["headers"])
	}

	if NewSendGrid("", "a@b", "", "") != nil {
		t.Fatal("empty api key must disable sendgrid")
	}
}

func TestSendGrid_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	sg := NewSendGrid("bad", "a@b", "", ts.URL)
	if _, err := sg.Send(context.Background(), Message{To: []string{"x@y"}}); err == nil {
		t.Fatal("want error on 401")
	}
}
