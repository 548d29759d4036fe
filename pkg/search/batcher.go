package search

import (
	"context"
	"sync"
	"time"

	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/models"
)

const (
	SourceLocal    = "local"
	SourceExternal = "external"
)

// Batcher coalesces search results into batches published at most once per
// window. Results from different sources are never mixed in one batch.
type Batcher struct {
	ctx       context.Context
	queryHash string
	publisher events.ProgressPublisher
	window    time.Duration

	mu      sync.Mutex
	pending []*models.Book
	source  string
	total   int
	timer   *time.Timer
	closed  bool
}

func NewBatcher(ctx context.Context, queryHash string, publisher events.ProgressPublisher, window time.Duration) *Batcher {
	return &Batcher{
		ctx:       ctx,
		queryHash: queryHash,
		publisher: publisher,
		window:    window,
	}
}

// Add queues a result. The first result of a batch starts its window.
func (b *Batcher) Add(source string, book *models.Book) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if len(b.pending) > 0 && b.source != source {
		b.flushLocked(false)
	}
	b.source = source
	b.pending = append(b.pending, book)
	b.total++

	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.flush)
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked(false)
}

// Close publishes whatever is pending as the final batch. Later adds are
// ignored.
func (b *Batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked(true)
	b.closed = true
}

func (b *Batcher) flushLocked(final bool) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) == 0 && !final {
		return
	}

	results := b.pending
	if results == nil {
		results = []*models.Book{}
	}
	b.pending = nil
	b.publisher.SearchResults(b.ctx, events.SearchResultsBatch{
		QueryHash:    b.queryHash,
		Results:      results,
		Source:       b.source,
		RunningTotal: b.total,
		IsFinal:      final,
	})
}
