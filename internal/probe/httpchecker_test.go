package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func checkHTTP(t *testing.T, svc domain.Service) Outcome {
	t.Helper()
	e := NewEngine(nil, NewHTTPChecker(5*time.Second), nil)
	res, err := e.Check(context.Background(), svc, domain.Defaults{TimeoutMs: 2000})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Type != domain.TypeHTTP {
		t.Fatalf("want type http, got %q", res.Type)
	}
	return res.Outcome
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL})
	if !out.OK {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status 200, got %v", out.StatusCode)
	}
	if out.LatencyMs < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMs)
	}
	if out.Reason != "" {
		t.Fatalf("want no reason on success, got %q", out.Reason)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL})
	if out.OK {
		t.Fatalf("want failure, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 500 {
		t.Fatalf("want status 500, got %v", out.StatusCode)
	}
	if out.Reason != domain.ReasonStatusCode {
		t.Fatalf("want STATUS_CODE, got %q", out.Reason)
	}
}

func TestHTTPChecker_ExpectedStatusAndMethod(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer s.Close()

	out := checkHTTP(t, domain.Service{
		ID: "a", Target: s.URL, Method: "post", Body: `{"ping":true}`,
		Headers:        map[string]string{"X-Probe": "1"},
		ExpectedStatus: intp(202),
	})
	if !out.OK {
		t.Fatalf("want success, got %+v", out)
	}
	if gotMethod != http.MethodPost || gotHeader != "1" || gotBody != `{"ping":true}` {
		t.Fatalf("request not forwarded: %s %q %q", gotMethod, gotHeader, gotBody)
	}

	out = checkHTTP(t, domain.Service{ID: "a", Target: s.URL, Method: "POST", ExpectedStatus: intp(200)})
	if out.OK || out.Reason != domain.ReasonStatusCode {
		t.Fatalf("want STATUS_CODE for 202 != 200, got %+v", out)
	}
}

func TestHTTPChecker_ExpectedText(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer s.Close()

	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL, ExpectedText: `"status":"ok"`})
	if out.OK || out.Reason != domain.ReasonExpectedText {
		t.Fatalf("want EXPECTED_TEXT, got %+v", out)
	}
	out = checkHTTP(t, domain.Service{ID: "a", Target: s.URL, ExpectedText: "degraded"})
	if !out.OK {
		t.Fatalf("want success, got %+v", out)
	}
}

func TestHTTPChecker_LatencyOverThreshold(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(40 * time.Millisecond)
		w.Write([]byte("slow but fine"))
	}))
	defer s.Close()

	// status is fine, latency is checked before text
	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL, MaxLatencyMs: floatp(1), ExpectedText: "missing"})
	if out.OK || out.Reason != domain.ReasonLatency {
		t.Fatalf("want LATENCY, got %+v", out)
	}
}

func TestHTTPChecker_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved here"))
	})
	s := httptest.NewServer(mux)
	defer s.Close()

	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL + "/old"})
	if out.StatusCode == nil || *out.StatusCode != http.StatusFound {
		t.Fatalf("want 302 without following, got %+v", out)
	}
	out = checkHTTP(t, domain.Service{ID: "a", Target: s.URL + "/old", FollowRedirects: true, ExpectedText: "moved"})
	if !out.OK || *out.StatusCode != 200 {
		t.Fatalf("want followed 200, got %+v", out)
	}
}

func TestHTTPChecker_TimeoutIsRequestFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	out := checkHTTP(t, domain.Service{ID: "a", Target: s.URL, TimeoutMs: 50})
	if out.OK || out.Reason != domain.ReasonRequestFailure {
		t.Fatalf("want REQUEST_FAILURE on timeout, got %+v", out)
	}
	if out.StatusCode != nil {
		t.Fatalf("want no status on timeout, got %d", *out.StatusCode)
	}
	if out.Error != "timeout after 50ms" {
		t.Fatalf("unexpected error %q", out.Error)
	}
	if d, ok := out.Details.(TimeoutDetails); !ok || d.TimeoutMs != 50 {
		t.Fatalf("want timeout details, got %#v", out.Details)
	}
}

func TestHTTPChecker_TransportFailure(t *testing.T) {
	out := checkHTTP(t, domain.Service{ID: "a", Target: "http://127.0.0.1:1/health"})
	if out.OK || out.Reason != domain.ReasonRequestFailure {
		t.Fatalf("want REQUEST_FAILURE, got %+v", out)
	}
	if out.Error == "" {
		t.Fatalf("want non-empty error message")
	}
	d, ok := out.Details.(HTTPDetails)
	if !ok || d.DNS != DNSIPLiteral {
		t.Fatalf("want ip literal dns hint, got %#v", out.Details)
	}
}

func TestHTTPChecker_BodyTruncated(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer s.Close()

	chk := NewHTTPChecker(time.Second)
	chk.MaxBody = 16
	e := NewEngine(nil, chk, nil)
	res, err := e.Check(context.Background(), domain.Service{ID: "a", Target: s.URL}, domain.Defaults{})
	if err != nil {
		t.Fatal(err)
	}
	d := res.Outcome.Details.(HTTPDetails)
	if !d.Truncated || d.BodyBytes != 16 {
		t.Fatalf("want truncated 16 bytes, got %#v", d)
	}
}
