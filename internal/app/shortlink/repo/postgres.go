package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"yacut.local/internal/app/shortlink"
	"yacut.local/internal/app/shortlink/stats"
)

const pgErrCodeUniqueViolation = "23505"

type PostgresStore struct {
	db    *pgxpool.Pool
	bloom *BloomFilter
}

// NewPostgresStore builds the store; bloom may be nil. A non-nil bloom must be warmed with
// WarmBloom before serving, otherwise Exists reports false for rows it has never seen.
func NewPostgresStore(db *pgxpool.Pool, bloom *BloomFilter) *PostgresStore {
	return &PostgresStore{
		db:    db,
		bloom: bloom,
	}
}

// WarmBloom loads every existing short id into the bloom filter.
func (s *PostgresStore) WarmBloom(ctx context.Context) (int, error) {
	if s.bloom == nil {
		return 0, nil
	}
	rows, err := s.db.Query(ctx, "SELECT short FROM url_map")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var short string
		if err := rows.Scan(&short); err != nil {
			return n, err
		}
		s.bloom.Add(short)
		n++
	}
	return n, rows.Err()
}

func (s *PostgresStore) Exists(ctx context.Context, short string) (bool, error) {
	// 布隆过滤器说不存在就一定不存在，省一次查库；
	// 误判为"可能存在"时再查库确认。
	if s.bloom != nil && !s.bloom.MightExist(short) {
		return false, nil
	}

	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var exists bool
	if err := s.db.QueryRow(dbctx, "SELECT EXISTS(SELECT 1 FROM url_map WHERE short=$1)", short).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists %q: %w", short, err)
	}
	return exists, nil
}

// Insert is a single INSERT: the UNIQUE constraint on short decides concurrent writers.
func (s *PostgresStore) Insert(ctx context.Context, original, short string) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(dbctx, "INSERT INTO url_map (original, short, created_at) VALUES ($1, $2, $3)", original, short, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrCodeUniqueViolation {
			if s.bloom != nil {
				s.bloom.Add(short)
			}
			return fmt.Errorf("insert %q: %w", short, shortlink.ErrConflict)
		}
		return fmt.Errorf("insert %q: %w", short, err)
	}

	if s.bloom != nil {
		s.bloom.Add(short)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, short string) (shortlink.Record, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var rec shortlink.Record
	err := s.db.
		QueryRow(dbctx, "SELECT id, original, short, created_at FROM url_map WHERE short=$1", short).
		Scan(&rec.ID, &rec.Original, &rec.Short, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.Record{}, fmt.Errorf("lookup %q: %w", short, shortlink.ErrNotFound)
		}
		return shortlink.Record{}, fmt.Errorf("lookup %q: %w", short, err)
	}
	return rec, nil
}

// RecordHits 用 COPY 批量写入点击明细。
func (s *PostgresStore) RecordHits(ctx context.Context, hits []stats.Hit) error {
	if len(hits) == 0 {
		return nil
	}
	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"url_hits"},
		[]string{"short", "hit_at", "ip", "referer", "user_agent"},
		pgx.CopyFromSlice(len(hits), func(i int) ([]any, error) {
			h := hits[i]
			return []any{h.Short, h.At, h.IP, h.Referer, h.UserAgent}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy hits: %w", err)
	}
	slog.Debug("hits copied", "rows", n)
	return nil
}

// HitCount returns the number of persisted hits for short.
func (s *PostgresStore) HitCount(ctx context.Context, short string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var n int64
	if err := s.db.QueryRow(dbctx, "SELECT COUNT(*) FROM url_hits WHERE short=$1", short).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
