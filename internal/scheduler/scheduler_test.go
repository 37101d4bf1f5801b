package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
)

// --- fakes ---

type staticSource struct{ f *domain.Fleet }

func (s staticSource) Current() *domain.Fleet { return s.f }

type fakeProber struct {
	mu    sync.Mutex
	calls map[domain.ServiceID]int
	block chan struct{}
	fn    func(svc domain.Service) (probe.Result, error)
}

func (f *fakeProber) Check(ctx context.Context, svc domain.Service, d domain.Defaults) (probe.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[domain.ServiceID]int{}
	}
	f.calls[svc.ID]++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.fn != nil {
		return f.fn(svc)
	}
	code := 200
	return probe.Result{Type: domain.TypeHTTP, Outcome: probe.Outcome{OK: true, StatusCode: &code, LatencyMs: 1}}, nil
}

func (f *fakeProber) count(id domain.ServiceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type clock struct{ t atomic.Int64 }

func (c *clock) now() time.Time          { return time.UnixMilli(c.t.Load()) }
func (c *clock) advance(d time.Duration) { c.t.Add(d.Milliseconds()) }

func fleet(ids ...domain.ServiceID) *domain.Fleet {
	f := &domain.Fleet{
		Workspace: domain.Workspace{ID: "ws1"},
		Defaults:  domain.Defaults{IntervalMs: 60_000, Retention: 100},
	}
	for _, id := range ids {
		f.Services = append(f.Services, domain.Service{ID: id, Target: "http://" + string(id)})
	}
	return f
}

func newTestScheduler(f *domain.Fleet, p Prober, max int) (*Scheduler, *memory.Store, *clock) {
	store := memory.New(nil)
	s := New(zap.NewNop(), staticSource{f}, p, store, nil, time.Millisecond, max)
	c := &clock{}
	c.t.Store(1_000_000)
	s.Now = c.now
	return s, store, c
}

func pass1(t *testing.T, s *Scheduler, max int) {
	t.Helper()
	g := &errgroup.Group{}
	g.SetLimit(max)
	s.runOnce(context.Background(), g)
	_ = g.Wait()
}

// --- tests ---

func TestScheduler_RunsDueServicesOnly(t *testing.T) {
	p := &fakeProber{}
	s, store, c := newTestScheduler(fleet("a", "b"), p, 4)

	pass1(t, s, 4)
	if p.count("a") != 1 || p.count("b") != 1 {
		t.Fatalf("first pass should probe everything: %v", p.calls)
	}

	c.advance(30 * time.Second)
	pass1(t, s, 4)
	if p.count("a") != 1 {
		t.Fatalf("not due yet, got %d calls", p.count("a"))
	}

	c.advance(30 * time.Second)
	pass1(t, s, 4)
	if p.count("a") != 2 || p.count("b") != 2 {
		t.Fatalf("due again after interval: %v", p.calls)
	}

	hits, _ := store.FetchHits(context.Background(), "a", 0, 1<<53)
	if len(hits) != 2 {
		t.Fatalf("want 2 recorded hits, got %d", len(hits))
	}
	h := hits[0]
	if h.Timestamp != 1_000_000 || h.WorkspaceID != "ws1" || !h.OK || !h.Success || h.ID == "" {
		t.Fatalf("unexpected hit %+v", h)
	}
}

func TestScheduler_PanicAndConfigErrorAreIsolated(t *testing.T) {
	p := &fakeProber{fn: func(svc domain.Service) (probe.Result, error) {
		switch svc.ID {
		case "panics":
			panic("boom")
		case "broken":
			return probe.Result{}, &probe.ConfigError{ServiceID: svc.ID, Field: "type", Msg: "unsupported"}
		}
		return probe.Result{Type: domain.TypeHTTP, Outcome: probe.Outcome{OK: true}}, nil
	}}
	s, store, _ := newTestScheduler(fleet("panics", "broken", "fine"), p, 4)

	pass1(t, s, 4)
	if hits, _ := store.FetchHits(context.Background(), "fine", 0, 1<<53); len(hits) != 1 {
		t.Fatalf("healthy service must still be recorded")
	}
	if hits, _ := store.FetchHits(context.Background(), "broken", 0, 1<<53); len(hits) != 0 {
		t.Fatalf("config errors record nothing")
	}
	s.mu.Lock()
	inflight := len(s.inflight)
	s.mu.Unlock()
	if inflight != 0 {
		t.Fatalf("in-flight markers must be cleared after a panic, got %d", inflight)
	}
}

func TestScheduler_SaturatedServiceStaysDue(t *testing.T) {
	p := &fakeProber{block: make(chan struct{})}
	s, _, _ := newTestScheduler(fleet("a", "b"), p, 1)

	g := &errgroup.Group{}
	g.SetLimit(1)
	s.runOnce(context.Background(), g)

	// only one slot: a is running, b was not started and keeps no lastRun
	s.mu.Lock()
	_, bScheduled := s.lastRun["b"]
	aInflight := s.inflight["a"]
	s.mu.Unlock()
	if bScheduled || !aInflight {
		t.Fatalf("want a in flight and b still due")
	}

	// a pass while a is still running must not start a second probe of a
	s.runOnce(context.Background(), g)
	close(p.block)
	_ = g.Wait()
	if p.count("a") != 1 {
		t.Fatalf("a probed %d times while in flight", p.count("a"))
	}

	pass1(t, s, 1)
	if p.count("b") != 1 {
		t.Fatalf("b should run once a slot frees up, got %d", p.count("b"))
	}
}

func TestScheduler_HungChecksDoNotDelayOthers(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProber{fn: func(svc domain.Service) (probe.Result, error) {
		if svc.ID != "s8" {
			<-release
		}
		code := 200
		return probe.Result{Type: domain.TypeHTTP, Outcome: probe.Outcome{OK: true, StatusCode: &code, LatencyMs: 1}}, nil
	}}
	s, store, c := newTestScheduler(fleet("s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"), p, 0)
	if s.MaxConcurrent != 0 || s.limit() != -1 {
		t.Fatalf("default should not cap fan-out, got %d", s.MaxConcurrent)
	}

	g := &errgroup.Group{}
	g.SetLimit(s.limit())
	defer func() {
		close(release)
		_ = g.Wait()
	}()

	waitHits := func(want int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			hits, _ := store.FetchHits(context.Background(), "s8", 0, 1<<53)
			s.mu.Lock()
			busy := s.inflight["s8"]
			s.mu.Unlock()
			if len(hits) >= want && !busy {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("s8 recorded %d hits, want %d", len(hits), want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	s.runOnce(context.Background(), g)
	waitHits(1)

	c.advance(time.Minute)
	s.runOnce(context.Background(), g)
	waitHits(2)

	for _, id := range []domain.ServiceID{"s0", "s7"} {
		if p.count(id) != 1 {
			t.Fatalf("%s checked %d times while hung", id, p.count(id))
		}
	}
}

func TestNew_NegativeCapMeansUnlimited(t *testing.T) {
	s := New(nil, staticSource{fleet()}, &fakeProber{}, memory.New(nil), nil, 0, -4)
	if s.MaxConcurrent != 0 || s.limit() != -1 {
		t.Fatalf("got cap %d limit %d", s.MaxConcurrent, s.limit())
	}
	s.MaxConcurrent = 3
	if s.limit() != 3 {
		t.Fatalf("opt-in cap ignored: %d", s.limit())
	}
}

func TestScheduler_NotifiesWithEffectivePrefs(t *testing.T) {
	f := fleet("a")
	f.Workspace.Notifications = domain.NotificationPrefs{Outage: true, Recipients: []string{"ops@x"}}
	p := &fakeProber{fn: func(domain.Service) (probe.Result, error) {
		return probe.Result{Type: domain.TypeHTTP, Outcome: probe.Outcome{OK: false, Reason: domain.ReasonRequestFailure, Error: "refused"}}, nil
	}}
	s, store, c := newTestScheduler(f, p, 2)
	nt := &memNotifier{}
	s.Notifier = NewAlerter(store, nt, nil)

	pass1(t, s, 2)
	c.advance(time.Minute)
	pass1(t, s, 2)

	if got := nt.kinds(); len(got) != 1 {
		t.Fatalf("want one outage alert after two failures, got %v", got)
	}
	hits, _ := store.FetchHits(context.Background(), "a", 0, 1<<53)
	if hits[0].Error == nil || *hits[0].Error != "refused" || hits[0].Reason != domain.ReasonRequestFailure {
		t.Fatalf("unexpected hit %+v", hits[0])
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	p := &fakeProber{}
	s, _, _ := newTestScheduler(fleet("a"), p, 2)
	s.Now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if p.count("a") != 1 {
		t.Fatalf("interval is a minute, want exactly one probe, got %d", p.count("a"))
	}
}

func TestNewHit_Undecipherable(t *testing.T) {
	f := fleet("db")
	res := probe.Result{Type: domain.TypePostgres, Outcome: probe.Outcome{Reason: domain.ReasonUndecipherableSource, Error: "undecipherable"}}
	h := NewHit(f, f.Services[0], res, time.UnixMilli(5))
	if h.LatencyMs != nil || h.StatusCode != nil || h.Details != nil {
		t.Fatalf("undecipherable hits carry no measurements: %+v", h)
	}
	if h.Reason != domain.ReasonUndecipherableSource || h.Type != domain.TypePostgres {
		t.Fatalf("unexpected hit %+v", h)
	}
}
