package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrRejected is returned when a call can't be admitted in time.
var ErrRejected = errors.New("rejected by rate limiter")

// Limiter wraps rate.Limiter with a name for logging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a rate limiter allowing requestsPerSecond with the given burst.
func New(name string, requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
	}
}

// Wait blocks until the limiter allows a request or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limit wait for %s", l.name)
	}
	return nil
}

// WaitAtMost waits for a token for no longer than maxWait. If the wait would be
// longer, ErrRejected is returned and no token is consumed.
func (l *Limiter) WaitAtMost(ctx context.Context, maxWait time.Duration) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return errors.Wrap(ErrRejected, l.name)
	}
	delay := r.Delay()
	if delay > maxWait {
		r.Cancel()
		return errors.Wrap(ErrRejected, l.name)
	}
	if delay == 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return errors.WithStack(ctx.Err())
	}
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}
