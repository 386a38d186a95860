package shortlink

import (
	"context"
	"fmt"
	"math/rand/v2"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// GeneratedLen 62^6 ≈ 5.68e10 个组合，冲突概率很低。
	GeneratedLen = 6
	// maxGenerateAttempts 防止在异常情况下（如 Exists 总返回 true）无限循环。
	maxGenerateAttempts = 100
)

// Exister is the part of the Store the generator needs.
type Exister interface {
	Exists(ctx context.Context, short string) (bool, error)
}

// Generator 随机生成 GeneratedLen 位的短码，并跳过已存在的。
type Generator struct {
	store       Exister
	intn        func(n int) int
	maxAttempts int
}

// GeneratorOption 用于测试时替换随机源或尝试次数。
type GeneratorOption func(*Generator)

// WithRandom replaces the random source; intn must return a value in [0, n).
func WithRandom(intn func(n int) int) GeneratorOption {
	return func(g *Generator) { g.intn = intn }
}

// WithMaxAttempts caps how many taken candidates Generate skips before giving up; n <= 0 keeps the default.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator 默认使用 math/rand/v2，最多尝试 100 次。
func NewGenerator(store Exister, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:       store,
		intn:        rand.IntN,
		maxAttempts: maxGenerateAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) draw() string {
	var buf [GeneratedLen]byte
	for i := range buf {
		buf[i] = alphabet[g.intn(len(alphabet))]
	}
	return string(buf[:])
}

// Generate returns a random id that does not exist in the store at the time of the check.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := g.draw()
		taken, err := g.store.Exists(ctx, candidate)
		if err != nil {
			return "", newError(KindPersistence, "generate", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", newError(KindAllocation, "generate", fmt.Errorf("no free short id after %d attempts", g.maxAttempts))
}
