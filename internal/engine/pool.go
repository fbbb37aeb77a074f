package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vk/rulegrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many task bodies run at once.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
	peak   atomic.Int64
}

// NewPool creates a pool with size worker slots.
func NewPool(size int) *Pool {
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Run blocks until a slot is free, then runs fn in the calling goroutine.
// The slot is released when fn returns or panics.
func (p *Pool) Run(ctx context.Context, fn func(context.Context) (cty.Value, error)) (cty.Value, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return cty.NilVal, fmt.Errorf("failed to acquire a worker: %w", err)
	}
	defer p.sem.Release(1)

	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	ctxlog.FromContext(ctx).Debug("Worker slot acquired.", "active", n, "size", p.size)
	return fn(ctx)
}

// Size returns the number of worker slots.
func (p *Pool) Size() int { return p.size }

// Peak returns the highest number of task bodies seen running at once.
func (p *Pool) Peak() int64 { return p.peak.Load() }
