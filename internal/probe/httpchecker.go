package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultMaxBody = 1 << 20

// HTTPChecker probes http services. Client timeouts are a backstop; the
// engine's timebox is what enforces the per-service timeout.
type HTTPChecker struct {
	Client   *http.Client
	MaxBody  int64
	Resolver Lookup
	// DNSHints classifies the host on transport failures.
	DNSHints bool
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableKeepAlives = true
	c := &http.Client{Timeout: timeout, Transport: tr}
	return &HTTPChecker{Client: c, MaxBody: defaultMaxBody, DNSHints: true}
}

func (h *HTTPChecker) client(follow bool) *http.Client {
	if follow {
		return h.Client
	}
	c := *h.Client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &c
}

func (h *HTTPChecker) check(ctx context.Context, rel *releaser, req Request) Outcome {
	svc := req.Service
	method := strings.ToUpper(strings.TrimSpace(svc.Method))
	if method == "" {
		method = http.MethodGet
	}
	det := HTTPDetails{Method: method}

	var body io.Reader
	if svc.Body != "" {
		body = strings.NewReader(svc.Body)
	}
	start := time.Now()
	hreq, err := http.NewRequestWithContext(ctx, method, req.Target, body)
	if err != nil {
		out := failure(domain.ReasonRequestFailure, sinceMs(start), err)
		out.Details = det
		return out
	}
	for k, v := range svc.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := h.client(svc.FollowRedirects).Do(hreq)
	if err != nil {
		out := failure(domain.ReasonRequestFailure, sinceMs(start), err)
		if h.DNSHints && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			det.DNS = ClassifyHost(ctx, h.Resolver, hreq.URL.Hostname()).Class
		}
		out.Details = det
		return out
	}
	rel.onRelease(func() { _ = resp.Body.Close() })

	limit := h.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	latency := sinceMs(start)
	code := resp.StatusCode
	if err != nil {
		out := failure(domain.ReasonRequestFailure, latency, fmt.Errorf("read body: %w", err))
		out.StatusCode = &code
		out.Details = det
		return out
	}
	if int64(len(raw)) > limit {
		raw = raw[:limit]
		det.Truncated = true
	}
	det.BodyBytes = len(raw)

	out := Outcome{StatusCode: &code, LatencyMs: latency, OK: true, Details: det}
	switch {
	case !statusMatches(code, svc.ExpectedStatus):
		out.OK, out.Reason = false, domain.ReasonStatusCode
		out.Error = fmt.Sprintf("unexpected status %d", code)
	case overLatency(latency, req.MaxLatencyMs):
		out.OK, out.Reason = false, domain.ReasonLatency
		out.Error = fmt.Sprintf("latency %.2fms over %.2fms", latency, *req.MaxLatencyMs)
	case svc.ExpectedText != "" && !strings.Contains(string(raw), svc.ExpectedText):
		out.OK, out.Reason = false, domain.ReasonExpectedText
		out.Error = fmt.Sprintf("response does not contain %q", svc.ExpectedText)
	}
	return out
}

func statusMatches(code int, expected *int) bool {
	if expected != nil {
		return code == *expected
	}
	return code >= 200 && code < 400
}
