package ports

import (
	"context"
	"errors"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
)

// ErrLockFailed is returned by a Locker that could not take the lock.
var ErrLockFailed = errors.New("failed to acquire lock")

// Lock is a held named lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out account-scoped mutual exclusion.
type Locker interface {
	Lock(ctx context.Context, key string) (Lock, error)
}

// RetryScheduler records a durable future re-invocation.
type RetryScheduler interface {
	Schedule(ctx context.Context, n domain.RetryNotification, when time.Time) error
}

// RetryQueue is the durable side of RetryScheduler, drained by the retry worker.
type RetryQueue interface {
	RetryScheduler
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryNotification, error)
	Complete(ctx context.Context, id uuid.UUID) error
}

// EventBus publishes domain events. Callers treat failures as best effort.
type EventBus interface {
	Publish(ctx context.Context, evt domain.Event) error
}
