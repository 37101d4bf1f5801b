package repo

import (
	"context"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Ports (interfaces): the scheduler and the API depend on these, not on a
// concrete store.

// HitStore keeps each service's hits ordered by timestamp.
type HitStore interface {
	// RecordHit appends one hit and trims the collection to the newest limit
	// entries. limit <= 0 disables trimming.
	RecordHit(ctx context.Context, hit domain.Hit, limit int64) error
	RecordHitsBatch(ctx context.Context, serviceID domain.ServiceID, hits []domain.Hit, limit int64) error
	// FetchHits returns hits with startMs <= timestamp <= endMs, ascending.
	FetchHits(ctx context.Context, serviceID domain.ServiceID, startMs, endMs int64) ([]domain.Hit, error)
	// DeleteServiceHits removes the service's collection and any legacy keys.
	// It returns how many keys were removed.
	DeleteServiceHits(ctx context.Context, serviceID domain.ServiceID) (int, error)
}
