package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func (s *Store) GetState(ctx context.Context, id domain.ServiceID) (domain.NotificationState, error) {
	const q = `SELECT state FROM notification_state WHERE service_id=$1`
	var st domain.NotificationState
	var raw []byte
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, nil
		}
		return st, fmt.Errorf("get state: %w", err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.NotificationState{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func (s *Store) PutState(ctx context.Context, id domain.ServiceID, st domain.NotificationState) error {
	const q = `
		INSERT INTO notification_state (service_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (service_id)
		DO UPDATE SET state=EXCLUDED.state, updated_at=EXCLUDED.updated_at
	`
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if _, err := s.pool.Exec(ctx, q, string(id), b); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}
