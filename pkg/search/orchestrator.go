package search

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/canonbooks/canon/pkg/providers"
	"github.com/canonbooks/canon/pkg/providers/googlebooks"
	"github.com/canonbooks/canon/pkg/providers/openlibrary"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// SearchPriority is the backfill priority of thin books a search surfaced.
// Someone just looked at them, so they jump ahead of scheduled work.
const SearchPriority = 2

// maxExternalFetch caps a single provider page.
const maxExternalFetch = 40

type LocalSearcher interface {
	SearchBooks(ctx context.Context, query string, limit int) ([]*models.Book, error)
}

type GoogleSearcher interface {
	Search(ctx context.Context, query string, max int, mode googlebooks.Mode) ([]*googlebooks.Volume, error)
	HasAPIKey() bool
}

type OpenLibrarySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*openlibrary.Doc, error)
}

type Upserter interface {
	Upsert(ctx context.Context, agg aggregate.Aggregate) (*books.UpsertResult, error)
}

type BookLoader interface {
	BooksByID(ctx context.Context, ids []string) ([]*models.Book, error)
}

type BackfillSeeder interface {
	EnqueueBook(book *models.Book, priority int) bool
}

type OrchestratorOptions struct {
	LocalTimeout    time.Duration
	ProviderTimeout time.Duration
	BatchWindow     time.Duration
}

// Orchestrator answers searches from the local store first and tops the
// results up from external providers when the store doesn't have enough.
type Orchestrator struct {
	local     LocalSearcher
	google    GoogleSearcher
	library   OpenLibrarySearcher
	upserter  Upserter
	loader    BookLoader
	breaker   *circuit.Breaker
	bulkhead  *ratelimit.Bulkhead
	backfill  BackfillSeeder
	publisher events.ProgressPublisher
	opts      OrchestratorOptions
}

func NewOrchestrator(local LocalSearcher, google GoogleSearcher, library OpenLibrarySearcher, upserter Upserter, loader BookLoader, breaker *circuit.Breaker, bulkhead *ratelimit.Bulkhead, backfill BackfillSeeder, publisher events.ProgressPublisher, opts OrchestratorOptions) *Orchestrator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.LocalTimeout <= 0 {
		opts.LocalTimeout = 1500 * time.Millisecond
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 3 * time.Second
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = 250 * time.Millisecond
	}
	return &Orchestrator{
		local:     local,
		google:    google,
		library:   library,
		upserter:  upserter,
		loader:    loader,
		breaker:   breaker,
		bulkhead:  bulkhead,
		backfill:  backfill,
		publisher: publisher,
		opts:      opts,
	}
}

// Search yields up to desired books: local results first, then external
// ones. It never fails; provider and store problems only shrink the result.
// A consumer may stop early, in which case external work still runs to
// completion so that whatever it found is persisted.
func (o *Orchestrator) Search(ctx context.Context, query string, desired int) iter.Seq[*models.Book] {
	return func(yield func(*models.Book) bool) {
		if desired <= 0 {
			return
		}
		hash := events.QueryHash(query)
		log := logger.FromContext(ctx)
		// Progress outlives the request so subscribers always see the end.
		pubCtx := context.WithoutCancel(ctx)

		o.publisher.SearchProgress(pubCtx, events.SearchProgress{QueryHash: hash, Status: events.ProgressStarting})
		batcher := NewBatcher(pubCtx, hash, o.publisher, o.opts.BatchWindow)

		failed := false
		defer func() {
			batcher.Close()
			status := events.ProgressComplete
			if failed {
				status = events.ProgressError
			}
			o.publisher.SearchProgress(pubCtx, events.SearchProgress{QueryHash: hash, Status: status})
		}()

		var local []*models.Book
		if err := safely(func() error {
			var err error
			local, err = o.searchLocal(ctx, query, desired)
			return err
		}); err != nil {
			log.Warn("local search failed", logger.Data{"query_hash": hash, "error": err.Error()})
			failed = isPanic(err)
			local = nil
		}
		o.seed(local)

		var external <-chan externalResult
		if missing := desired - len(local); missing > 0 {
			seen := newSeenSet()
			for _, b := range local {
				seen.add(b)
			}
			// Buffered so the goroutine can always finish, even when nobody
			// is left to receive.
			ch := make(chan externalResult, 1)
			external = ch
			go func() {
				var found []*models.Book
				err := safely(func() error {
					found = o.searchExternal(pubCtx, query, missing, seen)
					return nil
				})
				if err != nil {
					logger.FromContext(pubCtx).Err(err).Error("external search failed", logger.Data{"query_hash": hash})
				}
				ch <- externalResult{books: found, err: err}
			}()
		}

		for _, b := range local {
			batcher.Add(SourceLocal, b)
			if !yield(b) {
				return
			}
		}

		if external == nil {
			return
		}
		var res externalResult
		select {
		case res = <-external:
		case <-ctx.Done():
			return
		}
		failed = failed || res.err != nil
		for _, b := range res.books {
			batcher.Add(SourceExternal, b)
			if !yield(b) {
				return
			}
		}
	}
}

func (o *Orchestrator) searchLocal(ctx context.Context, query string, limit int) ([]*models.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.LocalTimeout)
	defer cancel()
	return o.local.SearchBooks(ctx, query, limit)
}

// searchExternal runs the provider chain, persists what it finds and returns
// up to missing books not already in seen.
func (o *Orchestrator) searchExternal(ctx context.Context, query string, missing int, seen *seenSet) []*models.Book {
	log := logger.FromContext(ctx)
	// Ask for more than needed since some results will be duplicates.
	fetch := min(missing*2+len(seen.ids), maxExternalFetch)

	aggs := o.fetchGoogle(ctx, query, fetch)
	if len(aggs) < missing {
		aggs = append(aggs, o.fetchOpenLibrary(ctx, query, fetch)...)
	}
	if len(aggs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(aggs))
	idSeen := map[string]struct{}{}
	for _, agg := range aggs {
		result, err := o.upserter.Upsert(ctx, *agg)
		if err != nil {
			if database.IsSystemicFailure(err) {
				log.Warn("store unavailable, abandoning external results", logger.Data{"error": err.Error()})
				break
			}
			// Already logged by the upsert engine.
			continue
		}
		if _, ok := idSeen[result.BookID]; ok {
			continue
		}
		idSeen[result.BookID] = struct{}{}
		ids = append(ids, result.BookID)
	}

	loaded, err := o.loader.BooksByID(ctx, ids)
	if err != nil {
		log.Warn("reloading external results failed", logger.Data{"error": err.Error()})
		return nil
	}

	out := make([]*models.Book, 0, missing)
	for _, b := range loaded {
		if seen.has(b) {
			continue
		}
		seen.add(b)
		out = append(out, b)
		if len(out) == missing {
			break
		}
	}
	o.seed(out)
	return out
}

// fetchGoogle tries the authenticated tier, and the unauthenticated tier only
// when the first is unavailable or fails.
func (o *Orchestrator) fetchGoogle(ctx context.Context, query string, max int) []*aggregate.Aggregate {
	if o.google == nil {
		return nil
	}
	for _, mode := range []googlebooks.Mode{googlebooks.Authenticated, googlebooks.Unauthenticated} {
		if mode == googlebooks.Authenticated && !o.google.HasAPIKey() {
			continue
		}
		if !o.breaker.Allowed(mode.Rail()) {
			continue
		}

		var vols []*googlebooks.Volume
		err := o.call(ctx, func(ctx context.Context) error {
			var err error
			vols, err = o.google.Search(ctx, query, max, mode)
			return err
		})
		if err != nil {
			o.recordFailure(ctx, mode.Rail(), err)
			continue
		}
		o.breaker.RecordSuccess(mode.Rail())

		aggs := make([]*aggregate.Aggregate, 0, len(vols))
		for _, v := range vols {
			if agg := googlebooks.MapVolume(v); agg != nil {
				aggs = append(aggs, agg)
			}
		}
		return aggs
	}
	return nil
}

func (o *Orchestrator) fetchOpenLibrary(ctx context.Context, query string, limit int) []*aggregate.Aggregate {
	if o.library == nil {
		return nil
	}
	var docs []*openlibrary.Doc
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		docs, err = o.library.Search(ctx, query, limit)
		return err
	})
	if err != nil {
		logger.FromContext(ctx).Warn("open library search failed", logger.Data{"error": err.Error()})
		return nil
	}

	aggs := make([]*aggregate.Aggregate, 0, len(docs))
	for _, d := range docs {
		if agg := openlibrary.MapDoc(d); agg != nil {
			aggs = append(aggs, agg)
		}
	}
	return aggs
}

// call runs one provider request under the provider timeout and the shared
// bulkhead.
func (o *Orchestrator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	defer cancel()

	if o.bulkhead != nil {
		release, err := o.bulkhead.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}
	return fn(ctx)
}

func (o *Orchestrator) recordFailure(ctx context.Context, rail circuit.Rail, err error) {
	if errors.Is(err, googlebooks.ErrNoAPIKey) {
		return
	}
	rateLimited := providers.IsRateLimit(err)
	o.breaker.RecordFailure(rail, rateLimited)
	logger.FromContext(ctx).Warn("google books search failed", logger.Data{
		"rail":         rail.String(),
		"rate_limited": rateLimited,
		"error":        err.Error(),
	})
}

func (o *Orchestrator) seed(found []*models.Book) {
	if o.backfill == nil {
		return
	}
	for _, b := range found {
		o.backfill.EnqueueBook(b, SearchPriority)
	}
}

type externalResult struct {
	books []*models.Book
	err   error
}

// seenSet tracks books by id and by provider canonical id so that two
// editions of the same work are only shown once.
type seenSet struct {
	ids       map[string]struct{}
	canonical map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{ids: map[string]struct{}{}, canonical: map[string]struct{}{}}
}

func canonicalKeys(b *models.Book) []string {
	var keys []string
	for _, e := range b.ExternalIDs {
		if e.CanonicalExternalID != nil && *e.CanonicalExternalID != "" {
			keys = append(keys, e.Source+":"+*e.CanonicalExternalID)
		}
	}
	return keys
}

func (s *seenSet) has(b *models.Book) bool {
	if _, ok := s.ids[b.ID]; ok {
		return true
	}
	for _, k := range canonicalKeys(b) {
		if _, ok := s.canonical[k]; ok {
			return true
		}
	}
	return false
}

func (s *seenSet) add(b *models.Book) {
	s.ids[b.ID] = struct{}{}
	for _, k := range canonicalKeys(b) {
		s.canonical[k] = struct{}{}
	}
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func isPanic(err error) bool {
	var pe *panicError
	return errors.As(err, &pe)
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(&panicError{value: r})
		}
	}()
	return fn()
}
