// Package circuit guards calls to the primary volumes provider with two
// independent rails, one for authenticated and one for unauthenticated calls.
//
// A single rate-limit failure opens a rail for the rest of the provider's quota
// day. The rail closes again on the first check made on a later calendar day in
// the provider's reset time zone, or when reset manually.
package circuit

import (
	"context"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Rail identifies one of the independently tracked failure states.
type Rail int

const (
	RailAuthenticated Rail = iota
	RailUnauthenticated
)

var rails = []Rail{RailAuthenticated, RailUnauthenticated}

func (r Rail) String() string {
	switch r {
	case RailAuthenticated:
		return "authenticated"
	case RailUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// ParseRail converts a rail name back into a Rail.
func ParseRail(s string) (Rail, bool) {
	for _, r := range rails {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

const (
	StatusClosed = "CLOSED"
	StatusOpen   = "OPEN"
)

// State is a snapshot of a rail.
type State struct {
	Rail         string     `json:"rail"`
	Status       string     `json:"status"`
	FailureCount int64      `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	OpenedOn     string     `json:"opened_on,omitempty"`
}

// rail holds one state machine. openedOn is 0 while closed and the yyyymmdd
// day number (in the reset zone) while open, so opening and resetting are a
// single compare-and-swap each.
type rail struct {
	openedOn     atomic.Int64
	failureCount atomic.Int64
	lastFailure  atomic.Int64
}

type Breaker struct {
	loc   *time.Location
	now   func() time.Time
	log   logger.Logger
	rails [2]rail
}

// New returns a breaker whose day boundaries are computed in the named time
// zone, e.g. "America/Los_Angeles".
func New(timeZone string) (*Breaker, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Breaker{loc: loc, now: time.Now, log: logger.New()}, nil
}

// WithClock replaces the clock used for day calculations.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allowed reports whether calls on the rail may proceed. An open rail resets
// itself when checked on a day after the one it opened on.
func (b *Breaker) Allowed(r Rail) bool {
	s := &b.rails[r]
	opened := s.openedOn.Load()
	if opened == 0 {
		return true
	}
	if b.today() <= opened {
		return false
	}
	if s.openedOn.CompareAndSwap(opened, 0) {
		s.failureCount.Store(0)
		b.log.Info("circuit auto-reset", logger.Data{"rail": r.String(), "opened_on": opened})
	}
	return s.openedOn.Load() == 0
}

// RecordFailure counts a failed call. Only rate-limit failures open the rail;
// the threshold is one because provider quotas are exhausted provider-wide.
func (b *Breaker) RecordFailure(r Rail, isRateLimit bool) {
	s := &b.rails[r]
	s.failureCount.Add(1)
	s.lastFailure.Store(b.now().UnixNano())
	if !isRateLimit {
		return
	}
	today := b.today()
	// A rail still marked open from an earlier day is moved to today.
	for {
		cur := s.openedOn.Load()
		if cur >= today {
			return
		}
		if s.openedOn.CompareAndSwap(cur, today) {
			b.log.Warn("circuit opened after rate limit", logger.Data{"rail": r.String(), "opened_on": today})
			return
		}
	}
}

// RecordSuccess clears the failure count of the rail.
func (b *Breaker) RecordSuccess(r Rail) {
	b.rails[r].failureCount.Store(0)
}

// Reset closes the rail immediately.
func (b *Breaker) Reset(ctx context.Context, r Rail) {
	s := &b.rails[r]
	s.openedOn.Store(0)
	s.failureCount.Store(0)
	logger.FromContext(ctx).Info("circuit manually reset", logger.Data{"rail": r.String()})
}

// ResetAll closes both rails.
func (b *Breaker) ResetAll(ctx context.Context) {
	for _, r := range rails {
		b.Reset(ctx, r)
	}
}

// State returns a snapshot of the rail.
func (b *Breaker) State(r Rail) State {
	s := &b.rails[r]
	st := State{
		Rail:         r.String(),
		Status:       StatusClosed,
		FailureCount: s.failureCount.Load(),
	}
	if opened := s.openedOn.Load(); opened != 0 {
		st.Status = StatusOpen
		st.OpenedOn = dayString(opened)
	}
	if last := s.lastFailure.Load(); last != 0 {
		t := time.Unix(0, last).In(b.loc)
		st.LastFailure = &t
	}
	return st
}

// States returns snapshots of every rail.
func (b *Breaker) States() []State {
	states := make([]State, 0, len(rails))
	for _, r := range rails {
		states = append(states, b.State(r))
	}
	return states
}

func (b *Breaker) today() int64 {
	return dayNumber(b.now().In(b.loc))
}

func dayNumber(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

func dayString(day int64) string {
	return time.Date(int(day/10000), time.Month(day/100%100), int(day%100), 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}
