// Package memory provides in-process implementations of the persistence and
// infrastructure ports, for tests and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
)

// Locker is a named-mutex ports.Locker. Lock polls up to maxTries times,
// sleeping wait between tries, then gives up with ports.ErrLockFailed.
type Locker struct {
	mu       sync.Mutex
	slots    map[string]chan struct{}
	maxTries int
	wait     time.Duration
}

func NewLocker(maxTries int, wait time.Duration) *Locker {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Locker{
		slots:    make(map[string]chan struct{}),
		maxTries: maxTries,
		wait:     wait,
	}
}

func (l *Locker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *Locker) Lock(ctx context.Context, key string) (ports.Lock, error) {
	ch := l.slot(key)
	for try := 1; ; try++ {
		select {
		case ch <- struct{}{}:
			return &memoryLock{ch: ch}, nil
		default:
		}

		if try >= l.maxTries {
			return nil, fmt.Errorf("%w: %s after %d tries", ports.ErrLockFailed, key, try)
		}

		timer := time.NewTimer(l.wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %v", ports.ErrLockFailed, key, ctx.Err())
		case <-timer.C:
		}
	}
}

// IsLocked reports whether key is currently held.
func (l *Locker) IsLocked(key string) bool {
	return len(l.slot(key)) == 1
}

type memoryLock struct {
	once sync.Once
	ch   chan struct{}
}

func (m *memoryLock) Release(ctx context.Context) error {
	m.once.Do(func() { <-m.ch })
	return nil
}
