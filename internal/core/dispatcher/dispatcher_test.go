package dispatcher_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/memory"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T, locker ports.Locker, timeout time.Duration, pool int) *dispatcher.PluginDispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return dispatcher.NewPluginDispatcher(locker, config.PaymentConfig{
		PluginTimeout: timeout,
		PoolSize:      pool,
	}, logger)
}

func TestDispatch_ReturnsTaskValue(t *testing.T) {
	d := newDispatcher(t, memory.NewLocker(1, time.Millisecond), time.Second, 2)

	v, err := dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	_, err = dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDispatch_Timeout(t *testing.T) {
	d := newDispatcher(t, memory.NewLocker(1, time.Millisecond), 20*time.Millisecond, 1)

	release := make(chan struct{})
	defer close(release)

	_, err := dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodePluginTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_Panic(t *testing.T) {
	d := newDispatcher(t, memory.NewLocker(1, time.Millisecond), time.Second, 1)

	_, err := dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (int, error) {
		panic("plugin exploded")
	})
	assert.ErrorIs(t, err, dispatcher.ErrPanic)

	// The slot is released after a panic.
	v, err := dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestDispatchWithAccountLock_LockFailure(t *testing.T) {
	locker := memory.NewLocker(1, time.Millisecond)
	held, err := locker.Lock(context.Background(), "acct")
	require.NoError(t, err)
	defer held.Release(context.Background())

	d := newDispatcher(t, locker, time.Second, 1)

	called := false
	_, err = dispatcher.DispatchWithAccountLock(d, context.Background(), "acct", func(ctx context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ports.ErrLockFailed)
	assert.False(t, called)
}

func TestDispatchWithAccountLock_SerializesPerAccount(t *testing.T) {
	locker := memory.NewLocker(1000, time.Millisecond)
	d := newDispatcher(t, locker, 5*time.Second, 8)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dispatcher.DispatchWithAccountLock(d, context.Background(), "acct", func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.False(t, locker.IsLocked("acct"))
}

func TestWithAccountLock_HoldsLockWithoutTimeout(t *testing.T) {
	locker := memory.NewLocker(1, time.Millisecond)
	d := newDispatcher(t, locker, 10*time.Millisecond, 1)

	errBoom := errors.New("boom")
	err := d.WithAccountLock(context.Background(), "acct", func(ctx context.Context) error {
		assert.True(t, locker.IsLocked("acct"))
		time.Sleep(30 * time.Millisecond)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, locker.IsLocked("acct"))

	held, err := locker.Lock(context.Background(), "acct")
	require.NoError(t, err)
	defer held.Release(context.Background())

	called := false
	err = d.WithAccountLock(context.Background(), "acct", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ports.ErrLockFailed)
	assert.False(t, called)
}

func TestDispatch_PoolBound(t *testing.T) {
	d := newDispatcher(t, memory.NewLocker(1, time.Millisecond), 5*time.Second, 2)

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dispatcher.Dispatch(d, context.Background(), "acct", func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}
