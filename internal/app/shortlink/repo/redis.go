package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/stats"
)

// 计数器和点击哈希放在记录前缀之外，任何合法短码都不会撞上它们。
const (
	redisKeyPrefix = "yacut:url:"
	redisSeqKey    = "yacut:seq"
	redisHitsKey   = "yacut:hits"
)

// RedisStore keeps each record as a JSON string under yacut:url:<short>.
// SETNX makes Insert atomic across processes.
type RedisStore struct {
	rdb *redis.Client
}

type redisRecord struct {
	ID        int64     `json:"id"`
	Original  string    `json:"original"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(short string) string {
	return redisKeyPrefix + short
}

func (s *RedisStore) Exists(ctx context.Context, short string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(short)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", short, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Insert(ctx context.Context, original, short string) error {
	id, err := s.rdb.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return fmt.Errorf("insert %q: next id: %w", short, err)
	}
	data, err := json.Marshal(redisRecord{ID: id, Original: original, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("insert %q: %w", short, err)
	}

	// TTL=0：记录永不过期
	ok, err := s.rdb.SetNX(ctx, s.key(short), data, 0).Result()
	if err != nil {
		return fmt.Errorf("insert %q: %w", short, err)
	}
	if !ok {
		return fmt.Errorf("insert %q: %w", short, shortlink.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, short string) (shortlink.Record, error) {
	data, err := s.rdb.Get(ctx, s.key(short)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shortlink.Record{}, fmt.Errorf("lookup %q: %w", short, shortlink.ErrNotFound)
		}
		return shortlink.Record{}, fmt.Errorf("lookup %q: %w", short, err)
	}

	var rr redisRecord
	if err := json.Unmarshal(data, &rr); err != nil {
		return shortlink.Record{}, fmt.Errorf("lookup %q: decode: %w", short, err)
	}
	return shortlink.Record{
		ID:        rr.ID,
		Original:  rr.Original,
		Short:     short,
		CreatedAt: rr.CreatedAt,
	}, nil
}

// RecordHits only keeps per-id counters in one hash.
func (s *RedisStore) RecordHits(ctx context.Context, hits []stats.Hit) error {
	if len(hits) == 0 {
		return nil
	}
	counts := make(map[string]int64, len(hits))
	for _, h := range hits {
		counts[h.Short]++
	}

	pipe := s.rdb.Pipeline()
	for short, n := range counts {
		pipe.HIncrBy(ctx, redisHitsKey, short, n)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record hits: %w", err)
	}
	return nil
}

func (s *RedisStore) HitCount(ctx context.Context, short string) (int64, error) {
	n, err := s.rdb.HGet(ctx, redisHitsKey, short).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
