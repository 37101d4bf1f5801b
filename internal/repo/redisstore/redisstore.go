package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const (
	DefaultPrefix = "pulsewatch"
	scanCount     = 100
)

// Store keeps one sorted set per service (score = timestamp ms, member =
// JSON hit) and one JSON string per service for notification state.
type Store struct {
	rdb     redis.Cmdable
	prefix  string
	auditor repo.Auditor
	log     *zap.Logger
}

func New(rdb redis.Cmdable, auditor repo.Auditor, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if auditor == nil {
		auditor = repo.LogAuditor{Log: log}
	}
	return &Store{rdb: rdb, prefix: DefaultPrefix, auditor: auditor, log: log}
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *Store) hitsKey(id domain.ServiceID) string {
	return s.prefix + ":hits:" + string(id)
}

func (s *Store) legacyPattern(id domain.ServiceID) string {
	return s.prefix + ":hit:" + escapeGlob(string(id)) + ":*"
}

func (s *Store) stateKey(id domain.ServiceID) string {
	return s.prefix + ":state:" + string(id)
}

func (s *Store) RecordHit(ctx context.Context, h domain.Hit, limit int64) error {
	return s.RecordHitsBatch(ctx, h.ServiceID, []domain.Hit{h}, limit)
}

func (s *Store) RecordHitsBatch(ctx context.Context, id domain.ServiceID, hits []domain.Hit, limit int64) error {
	if len(hits) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(hits))
	for _, h := range hits {
		b, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("marshal hit: %w", err)
		}
		members = append(members, redis.Z{Score: float64(h.Timestamp), Member: string(b)})
	}

	key := s.hitsKey(id)
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, key, members...)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record hits: %w", err)
	}

	if limit <= 0 || card.Val() <= limit {
		return nil
	}
	excess := card.Val() - limit
	s.auditor.Deletion(ctx, repo.DeletionEvent{
		Origin:    repo.OriginRetentionTrim,
		ServiceID: id,
		Keys:      []string{key},
		Count:     excess,
	})
	if err := s.rdb.ZRemRangeByRank(ctx, key, 0, excess-1).Err(); err != nil {
		return fmt.Errorf("trim hits: %w", err)
	}
	return nil
}

func (s *Store) FetchHits(ctx context.Context, id domain.ServiceID, startMs, endMs int64) ([]domain.Hit, error) {
	raw, err := s.rdb.ZRangeByScore(ctx, s.hitsKey(id), &redis.ZRangeBy{
		Min: strconv.FormatInt(startMs, 10),
		Max: strconv.FormatInt(endMs, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch hits: %w", err)
	}
	out := make([]domain.Hit, 0, len(raw))
	for _, m := range raw {
		var h domain.Hit
		if err := json.Unmarshal([]byte(m), &h); err != nil {
			s.log.Warn("store_bad_hit", zap.String("service_id", string(id)), zap.Error(err))
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// DeleteServiceHits removes the sorted set and any legacy per-hit keys. Legacy
// keys are gathered with an incremental SCAN, then audited and removed in
// batches.
func (s *Store) DeleteServiceHits(ctx context.Context, id domain.ServiceID) (int, error) {
	deleted := 0

	key := s.hitsKey(id)
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count hits: %w", err)
	}
	if n > 0 {
		s.auditor.Deletion(ctx, repo.DeletionEvent{
			Origin:    repo.OriginServiceDelete,
			ServiceID: id,
			Keys:      []string{key},
			Count:     n,
		})
		removed, err := s.rdb.Del(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete hits: %w", err)
		}
		deleted += int(removed)
	}

	// Collect first: deleting mid-scan can shift the cursor and skip keys.
	seen := make(map[string]struct{})
	var legacy []string
	iter := s.rdb.Scan(ctx, 0, s.legacyPattern(id), scanCount).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		legacy = append(legacy, k)
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan legacy keys: %w", err)
	}

	for len(legacy) > 0 {
		batch := legacy[:min(scanCount, len(legacy))]
		legacy = legacy[len(batch):]
		s.auditor.Deletion(ctx, repo.DeletionEvent{
			Origin:    repo.OriginLegacyDelete,
			ServiceID: id,
			Keys:      batch,
			Count:     int64(len(batch)),
		})
		removed, err := s.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return deleted, fmt.Errorf("delete legacy keys: %w", err)
		}
		deleted += int(removed)
	}
	return deleted, nil
}

func (s *Store) GetState(ctx context.Context, id domain.ServiceID) (domain.NotificationState, error) {
	var st domain.NotificationState
	b, err := s.rdb.Get(ctx, s.stateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get state: %w", err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.NotificationState{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func (s *Store) PutState(ctx context.Context, id domain.ServiceID, st domain.NotificationState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, s.stateKey(id), b, 0).Err(); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

var (
	_ repo.HitStore   = (*Store)(nil)
	_ repo.StateStore = (*Store)(nil)
)
