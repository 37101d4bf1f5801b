package repo

import (
	"context"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// StateStore persists the per-service notification state used by the
// alerter.
type StateStore interface {
	// GetState returns the zero state if nothing was stored yet.
	GetState(ctx context.Context, serviceID domain.ServiceID) (domain.NotificationState, error)
	PutState(ctx context.Context, serviceID domain.ServiceID, st domain.NotificationState) error
}
