package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/sqlite"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, dsn string) *sqlite.RetryQueue {
	t.Helper()
	db, err := sqlite.InitDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewRetryQueue(db, time.Minute)
}

func TestRetryQueue_ClaimAndComplete(t *testing.T) {
	q := newQueue(t, ":memory:")
	ctx := context.Background()
	now := time.Now().UTC()
	paymentID := uuid.New()

	first := domain.RetryNotification{AttemptID: uuid.New(), PaymentID: &paymentID, TransactionExternalKey: "a", PluginName: "backoff"}
	second := domain.RetryNotification{AttemptID: uuid.New(), TransactionExternalKey: "b"}
	future := domain.RetryNotification{AttemptID: uuid.New(), TransactionExternalKey: "c"}
	require.NoError(t, q.Schedule(ctx, second, now.Add(-time.Second)))
	require.NoError(t, q.Schedule(ctx, first, now.Add(-time.Minute)))
	require.NoError(t, q.Schedule(ctx, future, now.Add(time.Hour)))

	claimed, err := q.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "a", claimed[0].TransactionExternalKey, "earliest first")
	require.NotNil(t, claimed[0].PaymentID)
	assert.Equal(t, paymentID, *claimed[0].PaymentID)
	assert.Equal(t, "backoff", claimed[0].PluginName)
	assert.Nil(t, claimed[1].PaymentID)
	assert.Equal(t, now.Add(-time.Minute).UnixNano(), claimed[0].EffectiveDate.UnixNano())

	again, err := q.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, q.Complete(ctx, claimed[0].ID))

	// Only the unfinished claim comes back after the visibility window.
	reclaimed, err := q.ClaimDue(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "b", reclaimed[0].TransactionExternalKey)
}

func TestRetryQueue_LimitAndPersistence(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "retries.db")
	ctx := context.Background()
	now := time.Now().UTC()

	q := newQueue(t, dsn)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Schedule(ctx, domain.RetryNotification{AttemptID: uuid.New(), TransactionExternalKey: "k"}, now.Add(-time.Duration(i)*time.Second)))
	}

	reopened := newQueue(t, dsn)
	claimed, err := reopened.ClaimDue(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}
