// Package dispatcher runs plugin calls on a bounded pool, under an
// account-scoped lock and a hard timeout.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"golang.org/x/sync/semaphore"
)

// ErrPanic wraps a panic recovered from a dispatched task.
var ErrPanic = errors.New("dispatched task panicked")

type PluginDispatcher struct {
	locker  ports.Locker
	pool    *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
}

func NewPluginDispatcher(locker ports.Locker, cfg config.PaymentConfig, logger *slog.Logger) *PluginDispatcher {
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	return &PluginDispatcher{
		locker:  locker,
		pool:    semaphore.NewWeighted(int64(size)),
		timeout: cfg.PluginTimeout,
		logger:  logger,
	}
}

// Timeout is the hard limit applied to every dispatched task.
func (d *PluginDispatcher) Timeout() time.Duration {
	return d.timeout
}

// Task is the unit of work handed to the pool.
type Task[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	value T
	err   error
}

// Dispatch runs task on the worker pool and waits at most the configured
// timeout. The task keeps running after a timeout; its late result is dropped.
// Errors: a *domain.DomainError with ErrCodePluginTimeout on timeout,
// ErrPanic if the task panicked, otherwise whatever the task returned.
func Dispatch[T any](d *PluginDispatcher, ctx context.Context, accountKey string, task Task[T]) (T, error) {
	var zero T

	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.pool.Acquire(timeoutCtx, 1); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		d.logger.Warn("plugin call timed out waiting for a worker",
			"account", accountKey,
			"timeout", d.timeout)
		return zero, domain.NewPluginTimeoutError(d.timeout)
	}

	done := make(chan outcome[T], 1)
	taskCtx := context.WithoutCancel(ctx)

	go func() {
		defer d.pool.Release(1)
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("panic recovered",
					"panic", rec,
					"account", accountKey,
					"stack", string(debug.Stack()))
				done <- outcome[T]{err: fmt.Errorf("%w: %v", ErrPanic, rec)}
			}
		}()

		v, err := task(taskCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		d.logger.Warn("plugin call timed out",
			"account", accountKey,
			"timeout", d.timeout)
		return zero, domain.NewPluginTimeoutError(d.timeout)
	}
}

// DispatchWithAccountLock is Dispatch with the account lock held for the
// whole duration of the task. Lock failures wrap ports.ErrLockFailed.
func DispatchWithAccountLock[T any](d *PluginDispatcher, ctx context.Context, accountKey string, task Task[T]) (T, error) {
	return Dispatch(d, ctx, accountKey, func(ctx context.Context) (T, error) {
		var (
			out     T
			taskErr error
		)
		err := d.WithAccountLock(ctx, accountKey, func(ctx context.Context) error {
			out, taskErr = task(ctx)
			return nil
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return out, taskErr
	})
}

// WithAccountLock runs fn while holding the account lock. Unlike
// DispatchWithAccountLock it applies neither the pool nor the timeout, so a
// caller can keep the lock across several steps and dispatch only the plugin
// call. Lock failures wrap ports.ErrLockFailed and fn is not run.
func (d *PluginDispatcher) WithAccountLock(ctx context.Context, accountKey string, fn func(ctx context.Context) error) error {
	lock, err := d.locker.Lock(ctx, accountKey)
	if err != nil {
		d.logger.Error("failed to lock account", "account", accountKey, "error", err)
		if !errors.Is(err, ports.ErrLockFailed) {
			err = fmt.Errorf("%w: %v", ports.ErrLockFailed, err)
		}
		return fmt.Errorf("account %s: %w", accountKey, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Error("failed to release account lock", "account", accountKey, "error", err)
		}
	}()

	return fn(ctx)
}
