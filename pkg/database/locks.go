package database

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Locker runs transactions while holding an advisory lock keyed by an
// arbitrary integer. On Postgres this is pg_advisory_xact_lock, released with
// the transaction. SQLite has no advisory locks, so an in-process keyed lock is
// taken before the transaction begins and released after it ends.
type Locker struct {
	db       *bun.DB
	postgres bool

	// acquireTimeout bounds the wait for an in-process lock so a stuck holder
	// can't block writes indefinitely.
	acquireTimeout time.Duration

	mu   sync.Mutex
	keys map[int64]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocker(db *bun.DB) *Locker {
	return &Locker{
		db:             db,
		postgres:       db.Dialect().Name() == dialect.PG,
		acquireTimeout: 10 * time.Second,
		keys:           map[int64]*keyLock{},
	}
}

// LockKey hashes an identifier string into an advisory lock key.
func LockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

// RunInTx runs fn inside a transaction that holds the lock for key. Failing to
// take the lock is logged and the transaction proceeds unlocked.
func (l *Locker) RunInTx(ctx context.Context, key int64, fn func(ctx context.Context, tx bun.Tx) error) error {
	log := logger.FromContext(ctx)

	if l.postgres {
		err := l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			if err := lockPostgres(ctx, tx, key); err != nil {
				log.Err(err).Warn("advisory lock failed, continuing unlocked", logger.Data{"lock_key": key})
			}
			return fn(ctx, tx)
		})
		return errors.WithStack(err)
	}

	release, err := l.acquire(ctx, key)
	if err != nil {
		log.Err(err).Warn("advisory lock failed, continuing unlocked", logger.Data{"lock_key": key})
	} else {
		defer release()
	}

	return errors.WithStack(l.db.RunInTx(ctx, &sql.TxOptions{}, fn))
}

// lockPostgres takes the transaction-scoped lock inside a savepoint so that a
// failure doesn't poison the surrounding transaction.
func lockPostgres(ctx context.Context, tx bun.Tx, key int64) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT advisory_lock"); err != nil {
		return errors.WithStack(err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", key); err != nil {
		_, _ = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT advisory_lock")
		return errors.WithStack(err)
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT advisory_lock")
	return errors.WithStack(err)
}

func (l *Locker) acquire(ctx context.Context, key int64) (func(), error) {
	l.mu.Lock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.unref(key, kl)
		}, nil
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, errors.WithStack(ctx.Err())
	}
}

func (l *Locker) unref(key int64, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}
