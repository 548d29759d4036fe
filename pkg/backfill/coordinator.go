package backfill

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/canonbooks/canon/pkg/providers"
	"github.com/canonbooks/canon/pkg/providers/googlebooks"
	"github.com/canonbooks/canon/pkg/providers/openlibrary"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	// MaxRetries is how many fetches a task gets in total before it is
	// dropped.
	MaxRetries = 3

	isbnPrefix = "isbn:"
)

var errUnknownSource = errors.New("unknown backfill source")

// GoogleBooks is the part of the Google Books client the coordinator uses.
type GoogleBooks interface {
	Volume(ctx context.Context, id string, mode googlebooks.Mode) (*googlebooks.Volume, error)
	ByISBN(ctx context.Context, isbn string, mode googlebooks.Mode) (*googlebooks.Volume, error)
	HasAPIKey() bool
}

// OpenLibrary is the part of the Open Library client the coordinator uses.
type OpenLibrary interface {
	ByISBN(ctx context.Context, isbn string) (*openlibrary.Edition, error)
}

// Upserter persists a fetched aggregate.
type Upserter interface {
	Upsert(ctx context.Context, agg aggregate.Aggregate) (*books.UpsertResult, error)
}

type Options struct {
	// MaxWait bounds how long a task waits on the rate limiter before it's
	// put back in the queue.
	MaxWait time.Duration
	// RejectBackoff is how long the consumer pauses after a rejection.
	RejectBackoff time.Duration
}

// Coordinator owns the single consumer of the backfill queue.
type Coordinator struct {
	queue    *Queue
	limiter  *ratelimit.Limiter
	bulkhead *ratelimit.Bulkhead
	breaker  *circuit.Breaker
	google   GoogleBooks
	library  OpenLibrary
	upserter Upserter
	opts     Options
	log      logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewCoordinator(queue *Queue, limiter *ratelimit.Limiter, bulkhead *ratelimit.Bulkhead, breaker *circuit.Breaker, google GoogleBooks, library OpenLibrary, upserter Upserter, opts Options) *Coordinator {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}
	if opts.RejectBackoff <= 0 {
		opts.RejectBackoff = 250 * time.Millisecond
	}
	return &Coordinator{
		queue:    queue,
		limiter:  limiter,
		bulkhead: bulkhead,
		breaker:  breaker,
		google:   google,
		library:  library,
		upserter: upserter,
		opts:     opts,
		log:      logger.New(),
		done:     make(chan struct{}),
	}
}

// Queue returns the queue the coordinator drains.
func (c *Coordinator) Queue() *Queue {
	return c.queue
}

// Start runs the consumer loop in the background until Shutdown.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		_ = c.Run(ctx)
	}()
}

// Shutdown stops the consumer and waits for the current task to finish.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
	})
	<-c.done
}

// Run takes tasks one at a time until the context is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("backfill coordinator started")
	for {
		task, err := c.queue.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("backfill coordinator stopped")
				return nil
			}
			return err
		}

		if c.process(ctx, task) == outcomeRejected {
			select {
			case <-ctx.Done():
			case <-time.After(c.opts.RejectBackoff):
			}
		}
	}
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetried
	outcomeRejected
	outcomeDropped
)

func (c *Coordinator) process(ctx context.Context, task *Task) outcome {
	id, _ := uuid.NewRandom()
	log := c.log.ID(id.String()).Root(logger.Data{
		"source":    task.Source,
		"source_id": task.SourceID,
		"priority":  task.Priority,
	})
	ctx = log.WithContext(ctx)

	if c.limiter != nil {
		if err := c.limiter.WaitAtMost(ctx, c.opts.MaxWait); err != nil {
			return c.reject(ctx, task, "rate limiter")
		}
	}
	release := func() {}
	if c.bulkhead != nil {
		var err error
		release, err = c.bulkhead.TryAcquire()
		if err != nil {
			return c.reject(ctx, task, "bulkhead")
		}
	}
	agg, err := c.fetch(ctx, task)
	release()

	switch {
	case err == nil:
	case errors.Is(err, errUnknownSource), errors.Is(err, errRailsOpen):
		log.Warn("dropping backfill task", logger.Data{"reason": err.Error()})
		c.queue.MarkCompleted(task)
		return outcomeDropped
	case providers.IsNotFound(err):
		log.Debug("backfill record not found at provider")
		c.queue.MarkCompleted(task)
		return outcomeCompleted
	case providers.IsRateLimit(err):
		log.Warn("backfill rate limited, dropping task until the quota resets")
		c.queue.MarkCompleted(task)
		return outcomeDropped
	default:
		return c.fail(ctx, task, err)
	}

	if agg == nil {
		log.Debug("backfill record had nothing storable")
		c.queue.MarkCompleted(task)
		return outcomeCompleted
	}

	result, err := c.upserter.Upsert(ctx, *agg)
	if err != nil {
		if errors.Is(err, books.ErrValidation) {
			c.queue.MarkCompleted(task)
			return outcomeDropped
		}
		return c.fail(ctx, task, err)
	}

	log.Info("backfilled book", logger.Data{"book_id": result.BookID, "is_new": result.IsNew})
	c.queue.MarkCompleted(task)
	return outcomeCompleted
}

func (c *Coordinator) reject(ctx context.Context, task *Task, by string) outcome {
	logger.FromContext(ctx).Debug("backfill task rejected, requeueing", logger.Data{"rejected_by": by})
	if !c.queue.Retry(task) {
		logger.FromContext(ctx).Warn("backfill queue full, dropping rejected task")
		return outcomeDropped
	}
	return outcomeRejected
}

func (c *Coordinator) fail(ctx context.Context, task *Task, err error) outcome {
	log := logger.FromContext(ctx)
	task.Attempts++
	if task.Attempts < MaxRetries {
		log.Warn("backfill fetch failed, retrying", logger.Data{"error": err.Error(), "attempts": task.Attempts})
		if c.queue.Retry(task) {
			return outcomeRetried
		}
		log.Warn("backfill queue full, dropping task")
		return outcomeDropped
	}
	log.Err(err).Error("backfill task exhausted its retries", logger.Data{"attempts": task.Attempts})
	c.queue.MarkCompleted(task)
	return outcomeDropped
}

func (c *Coordinator) fetch(ctx context.Context, task *Task) (*aggregate.Aggregate, error) {
	switch task.Source {
	case models.SourceGoogleBooks:
		return c.fetchGoogle(ctx, task.SourceID)
	case models.SourceOpenLibrary:
		if c.library == nil {
			return nil, errUnknownSource
		}
		isbn := identifiers.NormalizeISBN(strings.TrimPrefix(task.SourceID, isbnPrefix))
		edition, err := c.library.ByISBN(ctx, isbn)
		if err != nil {
			return nil, err
		}
		return openlibrary.MapEdition(edition), nil
	default:
		return nil, errors.Wrap(errUnknownSource, task.Source)
	}
}

var errRailsOpen = errors.New("both google books rails are open")

func (c *Coordinator) fetchGoogle(ctx context.Context, sourceID string) (*aggregate.Aggregate, error) {
	if c.google == nil {
		return nil, errUnknownSource
	}

	mode, ok := c.googleMode()
	if !ok {
		return nil, errors.WithStack(errRailsOpen)
	}

	var (
		vol *googlebooks.Volume
		err error
	)
	if isbn, found := strings.CutPrefix(sourceID, isbnPrefix); found {
		vol, err = c.google.ByISBN(ctx, identifiers.NormalizeISBN(isbn), mode)
	} else {
		vol, err = c.google.Volume(ctx, sourceID, mode)
	}
	switch {
	case err == nil:
		c.breaker.RecordSuccess(mode.Rail())
	case providers.IsRateLimit(err):
		c.breaker.RecordFailure(mode.Rail(), true)
		return nil, err
	case providers.IsNotFound(err):
		return nil, err
	default:
		c.breaker.RecordFailure(mode.Rail(), false)
		return nil, err
	}
	return googlebooks.MapVolume(vol), nil
}

// googleMode picks the authenticated tier when it's usable and falls back to
// the unauthenticated one.
func (c *Coordinator) googleMode() (googlebooks.Mode, bool) {
	if c.google.HasAPIKey() && c.breaker.Allowed(circuit.RailAuthenticated) {
		return googlebooks.Authenticated, true
	}
	if c.breaker.Allowed(circuit.RailUnauthenticated) {
		return googlebooks.Unauthenticated, true
	}
	return 0, false
}
