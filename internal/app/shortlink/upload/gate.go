package upload

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"yacut.local/internal/platform/metrics"
)

// Gate admits one caller at a time. Each Pipeline gets its own.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the gate. It returns ctx.Err() if ctx ends before the gate is free.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	metrics.GateWaitSeconds.Observe(time.Since(start).Seconds())

	return fn()
}
