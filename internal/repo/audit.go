package repo

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Deletion origins.
const (
	OriginRetentionTrim = "retention_trim"
	OriginServiceDelete = "service_delete"
	OriginLegacyDelete  = "legacy_delete"
)

// DeletionEvent describes a destructive store operation. It is emitted
// before the operation runs.
type DeletionEvent struct {
	Origin    string
	ServiceID domain.ServiceID
	Keys      []string
	Count     int64
}

type Auditor interface {
	Deletion(ctx context.Context, ev DeletionEvent)
}

// LogAuditor writes deletion events to the application log.
type LogAuditor struct {
	Log *zap.Logger
}

func (a LogAuditor) Deletion(_ context.Context, ev DeletionEvent) {
	log := a.Log
	if log == nil {
		log = zap.L()
	}
	log.Warn("store_deletion",
		zap.String("origin", ev.Origin),
		zap.String("service_id", string(ev.ServiceID)),
		zap.Strings("keys", ev.Keys),
		zap.Int64("count", ev.Count),
	)
}

// AuditorFunc adapts a plain func.
type AuditorFunc func(ctx context.Context, ev DeletionEvent)

func (f AuditorFunc) Deletion(ctx context.Context, ev DeletionEvent) { f(ctx, ev) }

// MultiAuditor fans one event out to several auditors in order.
type MultiAuditor []Auditor

func (m MultiAuditor) Deletion(ctx context.Context, ev DeletionEvent) {
	for _, a := range m {
		if a != nil {
			a.Deletion(ctx, ev)
		}
	}
}
