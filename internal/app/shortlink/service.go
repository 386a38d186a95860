package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"yacut.local/internal/platform/metrics"
)

// Record 是唯一的持久化实体：短码 -> 原始链接。
// 创建后不更新、不删除。
type Record struct {
	ID        int64
	Original  string
	Short     string
	CreatedAt time.Time
}

// Store is the mapping store.
//
// Insert must be atomic and all-or-nothing: of two concurrent inserts with the same short
// exactly one succeeds and the other returns an error wrapping ErrConflict. Lookup returns
// an error wrapping ErrNotFound for unknown ids.
type Store interface {
	Exister
	Insert(ctx context.Context, original, short string) error
	Lookup(ctx context.Context, short string) (Record, error)
}

// Creator 表示"创建短链"的用例能力；上层（HTTP、上传流水线）只依赖接口。
type Creator interface {
	Register(ctx context.Context, originalURL, customShort string) (string, error)
}

// Resolver 解析短码并返回目标 URL。
type Resolver interface {
	Resolve(ctx context.Context, short string) (string, error)
}

// maxRaceRetries bounds how often a generated id that lost the insert race is redrawn.
const maxRaceRetries = 5

// Registrar allocates short ids and commits mappings. It holds no lock: uniqueness comes from
// the store's atomic insert, the Exists pre-check only saves a round trip in the common case.
type Registrar struct {
	store Store
	gen   *Generator
}

func NewRegistrar(store Store, gen *Generator) *Registrar {
	if gen == nil {
		gen = NewGenerator(store)
	}
	return &Registrar{store: store, gen: gen}
}

// Register commits originalURL under customShort, or under a generated id when customShort is empty.
//
// Errors are *Error with Kind:
// - KindValidation: originalURL empty or too long
// - KindNamingConflict: custom id invalid, reserved, or taken (including a lost race)
// - KindPersistence: the store failed
// - KindAllocation: the generator found no free id
func (r *Registrar) Register(ctx context.Context, originalURL, customShort string) (string, error) {
	source := "custom"
	if customShort == "" {
		source = "generated"
	}

	short, err := r.register(ctx, originalURL, customShort)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.Registrations.WithLabelValues(source, outcome).Inc()
	return short, err
}

func (r *Registrar) register(ctx context.Context, originalURL, customShort string) (string, error) {
	if originalURL == "" || len(originalURL) > MaxOriginalLen {
		return "", newError(KindValidation, "register", ErrInvalidURL)
	}

	if customShort != "" {
		return r.commit(ctx, originalURL, customShort)
	}

	for attempt := 1; attempt <= maxRaceRetries; attempt++ {
		candidate, err := r.gen.Generate(ctx)
		if err != nil {
			return "", err
		}
		short, err := r.commit(ctx, originalURL, candidate)
		if KindOf(err) != KindNamingConflict {
			return short, err
		}
		// 生成的短码在检查与插入之间被抢占，换一个重试
		slog.Warn("generated short id lost insert race", "short", candidate, "attempt", attempt)
	}
	return "", newError(KindNamingConflict, "register", ErrConflict)
}

func (r *Registrar) commit(ctx context.Context, originalURL, candidate string) (string, error) {
	if !IsValidCandidate(candidate) {
		return "", newError(KindNamingConflict, "register", fmt.Errorf("%w: %q", ErrInvalidCustomID, candidate))
	}

	taken, err := r.store.Exists(ctx, candidate)
	if err != nil {
		slog.Error("shortlink exists check failed", "short", candidate, "err", err)
		return "", newError(KindPersistence, "register", err)
	}
	if taken {
		return "", newError(KindNamingConflict, "register", fmt.Errorf("%w: %q", ErrConflict, candidate))
	}

	if err := r.store.Insert(ctx, originalURL, candidate); err != nil {
		if errors.Is(err, ErrConflict) {
			return "", newError(KindNamingConflict, "register", err)
		}
		slog.Error("shortlink insert failed", "short", candidate, "err", err)
		return "", newError(KindPersistence, "register", err)
	}

	slog.Info("shortlink registered", "short", candidate)
	return candidate, nil
}

// Resolve returns the original URL for short. Unknown or malformed ids are KindNotFound.
func (r *Registrar) Resolve(ctx context.Context, short string) (string, error) {
	if ValidateCustomID(short) != nil {
		return "", newError(KindNotFound, "resolve", ErrNotFound)
	}
	rec, err := r.store.Lookup(ctx, short)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", newError(KindNotFound, "resolve", err)
		}
		slog.Error("shortlink lookup failed", "short", short, "err", err)
		return "", newError(KindPersistence, "resolve", err)
	}
	return rec.Original, nil
}
