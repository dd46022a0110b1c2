package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
)

type queuedRetry struct {
	n         domain.RetryNotification
	claimedAt *time.Time
}

// RetryQueue keeps scheduled retries in memory. A claimed entry stays hidden
// until Complete removes it or visibility passes, whichever comes first.
type RetryQueue struct {
	mu         sync.Mutex
	entries    map[uuid.UUID]*queuedRetry
	visibility time.Duration
}

func NewRetryQueue(visibility time.Duration) *RetryQueue {
	return &RetryQueue{
		entries:    make(map[uuid.UUID]*queuedRetry),
		visibility: visibility,
	}
}

func (q *RetryQueue) Schedule(ctx context.Context, n domain.RetryNotification, when time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.EffectiveDate = when
	q.entries[n.ID] = &queuedRetry{n: n}
	return nil
}

func (q *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryNotification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	expired := now.Add(-q.visibility)
	var due []*queuedRetry
	for _, e := range q.entries {
		if e.claimedAt != nil && !e.claimedAt.Before(expired) {
			continue
		}
		if !e.n.EffectiveDate.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].n.EffectiveDate.Before(due[j].n.EffectiveDate) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.RetryNotification, 0, len(due))
	for _, e := range due {
		claimedAt := now
		e.claimedAt = &claimedAt
		out = append(out, e.n)
	}
	return out, nil
}

func (q *RetryQueue) Complete(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
	return nil
}

// Pending returns every entry not yet completed, claimed or not.
func (q *RetryQueue) Pending() []domain.RetryNotification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.RetryNotification, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EffectiveDate.Before(out[j].EffectiveDate) })
	return out
}
