// Package gate provides the single-flight guard around billing passes.
package gate

import (
	"context"
	"sync"

	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"golang.org/x/sync/semaphore"
)

// Gate admits one holder at a time. Release must be called exactly once.
type Gate interface {
	// Acquire waits until the gate is free or ctx is done.
	Acquire(ctx context.Context) (release func(), err error)
	// TryAcquire returns domain.ErrPassInProgress or domain.ErrLockHeld
	// instead of waiting.
	TryAcquire(ctx context.Context) (release func(), err error)
}

// LocalGate is a process-wide gate backed by a weighted semaphore of size 1.
type LocalGate struct {
	sem *semaphore.Weighted
}

func NewLocal() *LocalGate {
	return &LocalGate{sem: semaphore.NewWeighted(1)}
}

func (g *LocalGate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return g.releaser(), nil
}

func (g *LocalGate) TryAcquire(context.Context) (func(), error) {
	if !g.sem.TryAcquire(1) {
		return nil, domain.ErrPassInProgress
	}
	return g.releaser(), nil
}

func (g *LocalGate) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}
}
