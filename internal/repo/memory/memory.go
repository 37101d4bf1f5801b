package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

// Store keeps hits and notification state in process memory. Used for tests
// and for running without Redis.
type Store struct {
	mu      sync.RWMutex
	hits    map[domain.ServiceID][]domain.Hit
	states  map[domain.ServiceID]domain.NotificationState
	auditor repo.Auditor
}

func New(auditor repo.Auditor) *Store {
	if auditor == nil {
		auditor = repo.LogAuditor{}
	}
	return &Store{
		hits:    make(map[domain.ServiceID][]domain.Hit),
		states:  make(map[domain.ServiceID]domain.NotificationState),
		auditor: auditor,
	}
}

func (m *Store) RecordHit(ctx context.Context, h domain.Hit, limit int64) error {
	return m.RecordHitsBatch(ctx, h.ServiceID, []domain.Hit{h}, limit)
}

func (m *Store) RecordHitsBatch(ctx context.Context, id domain.ServiceID, hits []domain.Hit, limit int64) error {
	if len(hits) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := append(m.hits[id], hits...)
	sort.SliceStable(cur, func(i, j int) bool { return cur[i].Timestamp < cur[j].Timestamp })
	if limit > 0 && int64(len(cur)) > limit {
		excess := int64(len(cur)) - limit
		m.auditor.Deletion(ctx, repo.DeletionEvent{
			Origin:    repo.OriginRetentionTrim,
			ServiceID: id,
			Keys:      []string{string(id)},
			Count:     excess,
		})
		cur = append([]domain.Hit(nil), cur[excess:]...)
	}
	m.hits[id] = cur
	return nil
}

func (m *Store) FetchHits(_ context.Context, id domain.ServiceID, startMs, endMs int64) ([]domain.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cur := m.hits[id]
	lo := sort.Search(len(cur), func(i int) bool { return cur[i].Timestamp >= startMs })
	out := make([]domain.Hit, 0)
	for i := lo; i < len(cur) && cur[i].Timestamp <= endMs; i++ {
		out = append(out, cur[i])
	}
	return out, nil
}

func (m *Store) DeleteServiceHits(ctx context.Context, id domain.ServiceID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.hits[id])
	if n == 0 {
		return 0, nil
	}
	m.auditor.Deletion(ctx, repo.DeletionEvent{
		Origin:    repo.OriginServiceDelete,
		ServiceID: id,
		Keys:      []string{string(id)},
		Count:     int64(n),
	})
	delete(m.hits, id)
	return 1, nil
}

func (m *Store) GetState(_ context.Context, id domain.ServiceID) (domain.NotificationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[id], nil
}

func (m *Store) PutState(_ context.Context, id domain.ServiceID, st domain.NotificationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = st
	return nil
}

var (
	_ repo.HitStore   = (*Store)(nil)
	_ repo.StateStore = (*Store)(nil)
)
