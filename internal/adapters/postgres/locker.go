package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Locker takes session-level advisory locks keyed by hashtext(key). A held
// lock pins one pooled connection until it is released.
type Locker struct {
	pool     *pgxpool.Pool
	maxTries int
	wait     time.Duration
}

var _ ports.Locker = (*Locker)(nil)

func NewLocker(db *DB, maxTries int, wait time.Duration) *Locker {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Locker{pool: db.Pool, maxTries: maxTries, wait: wait}
}

func (l *Locker) Lock(ctx context.Context, key string) (ports.Lock, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockFailed, key, err)
	}

	for try := 1; ; try++ {
		var acquired bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&acquired); err != nil {
			conn.Release()
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockFailed, key, err)
		}
		if acquired {
			return &advisoryLock{conn: conn, key: key}, nil
		}

		if try >= l.maxTries {
			conn.Release()
			return nil, fmt.Errorf("%w: %s after %d tries", ports.ErrLockFailed, key, try)
		}

		timer := time.NewTimer(l.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			conn.Release()
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockFailed, key, ctx.Err())
		case <-timer.C:
		}
	}
}

type advisoryLock struct {
	once sync.Once
	conn *pgxpool.Conn
	key  string
	err  error
}

func (a *advisoryLock) Release(ctx context.Context) error {
	a.once.Do(func() {
		if _, err := a.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, a.key); err != nil {
			// The session still holds the lock; drop the connection so the
			// server releases it.
			_ = a.conn.Conn().Close(ctx)
			a.err = err
		}
		a.conn.Release()
	})
	return a.err
}
