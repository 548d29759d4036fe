package ratelimit

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull is returned when every slot of a bulkhead is in use.
var ErrBulkheadFull = errors.New("bulkhead full")

// Bulkhead bounds the number of concurrent calls to a dependency. It's shared
// between interactive search and background backfill so that background work
// can't starve user-facing calls.
type Bulkhead struct {
	sem  *semaphore.Weighted
	name string
}

func NewBulkhead(name string, size int64) *Bulkhead {
	if size < 1 {
		size = 1
	}
	return &Bulkhead{sem: semaphore.NewWeighted(size), name: name}
}

// TryAcquire takes a slot without waiting. The returned func releases it.
func (b *Bulkhead) TryAcquire() (func(), error) {
	if !b.sem.TryAcquire(1) {
		return nil, errors.Wrap(ErrBulkheadFull, b.name)
	}
	return func() { b.sem.Release(1) }, nil
}

// Acquire waits for a slot until the context is done.
func (b *Bulkhead) Acquire(ctx context.Context) (func(), error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, b.name)
	}
	return func() { b.sem.Release(1) }, nil
}
