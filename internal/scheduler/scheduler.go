package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/metrics"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const (
	defaultTick     = time.Second
	defaultInterval = 60 * time.Second
)

// Source returns the current fleet snapshot. Snapshots are never mutated.
type Source interface {
	Current() *domain.Fleet
}

type Prober interface {
	Check(ctx context.Context, svc domain.Service, d domain.Defaults) (probe.Result, error)
}

// Notifier consumes every recorded hit. *Alerter implements it.
type Notifier interface {
	Handle(ctx context.Context, svc domain.Service, prefs domain.NotificationPrefs, hit domain.Hit) error
}

type Scheduler struct {
	Logger   *zap.Logger
	Source   Source
	Prober   Prober
	Hits     repo.HitStore
	Notifier Notifier
	Tick     time.Duration
	// MaxConcurrent caps in-flight checks; <= 0 runs every due service at once.
	MaxConcurrent int
	Now           func() time.Time

	mu       sync.Mutex
	lastRun  map[domain.ServiceID]time.Time
	inflight map[domain.ServiceID]bool
}

func (s *Scheduler) limit() int {
	if s.MaxConcurrent <= 0 {
		return -1
	}
	return s.MaxConcurrent
}

func New(
	logger *zap.Logger,
	src Source,
	prober Prober,
	hits repo.HitStore,
	notifier Notifier,
	tick time.Duration,
	maxConcurrent int,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = defaultTick
	}
	if maxConcurrent < 0 {
		maxConcurrent = 0
	}
	return &Scheduler{
		Logger:        logger,
		Source:        src,
		Prober:        prober,
		Hits:          hits,
		Notifier:      notifier,
		Tick:          tick,
		MaxConcurrent: maxConcurrent,
		Now:           time.Now,
		lastRun:       make(map[domain.ServiceID]time.Time),
		inflight:      make(map[domain.ServiceID]bool),
	}
}

// Run does an immediate pass, then one pass per tick. Passes only launch
// probes; they never wait for them. On cancellation Run waits for running
// probes to finish.
func (s *Scheduler) Run(ctx context.Context) {
	g := &errgroup.Group{}
	g.SetLimit(s.limit())

	t := time.NewTicker(s.Tick)
	defer t.Stop()

	s.runOnce(ctx, g)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.runOnce(ctx, g)
		}
	}
}

// runOnce launches every due service that has no probe in flight. A service
// that cannot get a slot stays due and is picked up by a later pass.
func (s *Scheduler) runOnce(ctx context.Context, g *errgroup.Group) {
	fleet := s.Source.Current()
	if fleet == nil {
		return
	}
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[domain.ServiceID]struct{}, len(fleet.Services))
	for _, svc := range fleet.Services {
		if svc.ID == "" {
			continue
		}
		seen[svc.ID] = struct{}{}
		if s.inflight[svc.ID] {
			continue
		}
		interval := time.Duration(svc.EffectiveInterval(fleet.Defaults)) * time.Millisecond
		if interval <= 0 {
			interval = defaultInterval
		}
		if last, ok := s.lastRun[svc.ID]; ok && now.Sub(last) < interval {
			continue
		}

		prev, hadPrev := s.lastRun[svc.ID]
		s.inflight[svc.ID] = true
		s.lastRun[svc.ID] = now

		svc := svc
		if !g.TryGo(func() error {
			s.runService(ctx, fleet, svc)
			return nil
		}) {
			delete(s.inflight, svc.ID)
			if hadPrev {
				s.lastRun[svc.ID] = prev
			} else {
				delete(s.lastRun, svc.ID)
			}
			s.Logger.Debug("scheduler_saturated", zap.String("service_id", string(svc.ID)))
			break
		}
	}

	// forget services removed by a reload
	for id := range s.lastRun {
		if _, ok := seen[id]; !ok && !s.inflight[id] {
			delete(s.lastRun, id)
		}
	}
}

// runService is one unit of work: probe, record, notify.
func (s *Scheduler) runService(ctx context.Context, fleet *domain.Fleet, svc domain.Service) {
	log := s.Logger.With(zap.String("service_id", string(svc.ID)))
	metrics.ProbeStarted()
	defer func() {
		if p := recover(); p != nil {
			metrics.ProbeError("panic")
			log.Error("probe_panic", zap.Any("panic", p))
		}
		metrics.ProbeFinished()
		s.mu.Lock()
		delete(s.inflight, svc.ID)
		s.mu.Unlock()
	}()

	start := s.Now()
	res, err := s.Prober.Check(ctx, svc, fleet.Defaults)
	if err != nil {
		var ce *probe.ConfigError
		switch {
		case errors.As(err, &ce):
			metrics.ProbeError("config")
			log.Warn("probe_config_error", zap.Error(err))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			log.Debug("probe_cancelled", zap.Error(err))
		default:
			metrics.ProbeError("probe")
			log.Error("probe_error", zap.Error(err))
		}
		return
	}

	hit := NewHit(fleet, svc, res, start)
	metrics.ObserveProbe(string(res.Type), hit.OK, time.Duration(res.Outcome.LatencyMs*float64(time.Millisecond)))
	if hit.OK {
		log.Debug("probe_ok", zap.Float64("latency_ms", res.Outcome.LatencyMs))
	} else {
		log.Info("probe_failed",
			zap.String("reason", hit.Reason),
			zap.String("error", res.Outcome.Error),
			zap.Float64("latency_ms", res.Outcome.LatencyMs),
		)
	}

	limit := svc.EffectiveRetention(fleet.Defaults)
	if err := s.Hits.RecordHit(ctx, hit, limit); err != nil {
		metrics.ProbeError("store")
		log.Warn("store_record_failed", zap.Error(err))
	}

	if s.Notifier == nil {
		return
	}
	prefs := svc.EffectiveNotifications(fleet.Workspace)
	if err := s.Notifier.Handle(ctx, svc, prefs, hit); err != nil {
		log.Warn("notify_failed", zap.Error(err))
	}
}

// NewHit converts a probe result into the stored record. The timestamp is
// the probe start.
func NewHit(fleet *domain.Fleet, svc domain.Service, res probe.Result, start time.Time) domain.Hit {
	out := res.Outcome
	h := domain.Hit{
		ID:                uuid.NewString(),
		ServiceID:         svc.ID,
		WorkspaceID:       fleet.Workspace.ID,
		Timestamp:         start.UnixMilli(),
		StatusCode:        out.StatusCode,
		OK:                out.OK,
		Success:           out.OK,
		ExpectedLatencyMs: svc.EffectiveMaxLatency(fleet.Defaults),
		Type:              res.Type,
	}
	if !out.OK {
		h.Reason = out.Reason
	}
	if out.Reason != domain.ReasonUndecipherableSource {
		lat := out.LatencyMs
		h.LatencyMs = &lat
	}
	if out.Error != "" {
		e := out.Error
		h.Error = &e
	}
	if out.Details != nil {
		h.Details = out.Details.Map()
	}
	return h
}
