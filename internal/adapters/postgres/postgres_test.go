package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/postgres"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/postgres/pgtest"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTxn(key string, status domain.TransactionStatus, createdAt time.Time) *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:                     uuid.New(),
		TransactionExternalKey: key,
		TransactionType:        domain.TransactionTypePurchase,
		Status:                 status,
		Amount:                 decimal.RequireFromString("10.50"),
		Currency:               "USD",
		EffectiveDate:          createdAt,
		CreatedAt:              createdAt,
		UpdatedAt:              createdAt,
	}
}

func newPayment(accountID, pmID uuid.UUID, key string, now time.Time) *domain.Payment {
	return &domain.Payment{
		ID:              uuid.New(),
		AccountID:       accountID,
		PaymentMethodID: pmID,
		ExternalKey:     key,
		StateName:       "PURCHASE_INIT",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPostgresAdapters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	td := pgtest.SetupTestDatabase(t)
	dao := postgres.NewPaymentDao(td.DB)
	accounts := postgres.NewAccountAPI(td.DB)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedAccount := func(t *testing.T) (domain.Account, uuid.UUID) {
		t.Helper()
		acc := domain.Account{ID: uuid.New(), ExternalKey: "acct-" + uuid.NewString(), Currency: "USD"}
		require.NoError(t, accounts.InsertAccount(ctx, acc))
		pmID := uuid.New()
		require.NoError(t, dao.InsertPaymentMethod(ctx, domain.PaymentMethod{ID: pmID, AccountID: acc.ID, PluginName: "bank", IsActive: true}))
		require.NoError(t, accounts.SetDefaultPaymentMethod(ctx, acc.ID, pmID))
		acc.DefaultPaymentMethodID = &pmID
		return acc, pmID
	}

	t.Run("payment with transactions round trips", func(t *testing.T) {
		td.CleanTables(t)
		acc, pmID := seedAccount(t)

		attemptID := uuid.New()
		first := newTxn("k1", domain.TransactionStatusInit, now)
		first.AttemptID = &attemptID
		p, err := dao.InsertPaymentWithFirstTransaction(ctx, newPayment(acc.ID, pmID, "pay-1", now), first)
		require.NoError(t, err)
		require.Len(t, p.Transactions, 1)
		assert.Equal(t, p.ID, p.Transactions[0].PaymentID)
		require.NotNil(t, p.Transactions[0].AttemptID)
		assert.Equal(t, attemptID, *p.Transactions[0].AttemptID)
		assert.True(t, p.Transactions[0].Amount.Equal(decimal.RequireFromString("10.50")))

		second := newTxn("k2", domain.TransactionStatusInit, now.Add(time.Second))
		_, err = dao.UpdatePaymentWithNewTransaction(ctx, p.ID, second)
		require.NoError(t, err)

		byKey, err := dao.GetPaymentByExternalKey(ctx, "pay-1")
		require.NoError(t, err)
		require.Len(t, byKey.Transactions, 2)
		assert.Equal(t, "k1", byKey.Transactions[0].TransactionExternalKey)
		assert.Nil(t, byKey.Transactions[1].AttemptID)

		missing, err := dao.GetPaymentByExternalKey(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = dao.GetPayment(ctx, uuid.New())
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodePaymentNotFound))

		_, err = dao.InsertPaymentWithFirstTransaction(ctx, newPayment(acc.ID, pmID, "pay-1", now), newTxn("k3", domain.TransactionStatusInit, now))
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInternal))
		txns, err := dao.GetTransactionsByExternalKey(ctx, "k3")
		require.NoError(t, err)
		assert.Empty(t, txns, "rolled back with the payment")
	})

	t.Run("completion never rewrites a successful transaction", func(t *testing.T) {
		td.CleanTables(t)
		acc, pmID := seedAccount(t)
		txn := newTxn("done", domain.TransactionStatusInit, now)
		p, err := dao.InsertPaymentWithFirstTransaction(ctx, newPayment(acc.ID, pmID, "pay-2", now), txn)
		require.NoError(t, err)

		require.NoError(t, dao.UpdatePaymentAndTransactionOnCompletion(ctx, domain.TransactionCompletion{
			PaymentID:            p.ID,
			StateName:            "PURCHASE_SUCCESS",
			LastSuccessStateName: "PURCHASE_SUCCESS",
			TransactionID:        txn.ID,
			Status:               domain.TransactionStatusSuccess,
			ProcessedAmount:      decimal.RequireFromString("10.50"),
			ProcessedCurrency:    "USD",
		}))
		require.NoError(t, dao.UpdatePaymentAndTransactionOnCompletion(ctx, domain.TransactionCompletion{
			PaymentID:     p.ID,
			StateName:     "PURCHASE_ERRORED",
			TransactionID: txn.ID,
			Status:        domain.TransactionStatusUnknown,
		}))

		got, err := dao.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "PURCHASE_ERRORED", got.StateName)
		assert.Equal(t, "PURCHASE_SUCCESS", got.LastSuccessStateName)
		assert.Equal(t, domain.TransactionStatusSuccess, got.Transactions[0].Status)
		assert.Equal(t, domain.Currency("USD"), got.Transactions[0].ProcessedCurrency)
	})

	t.Run("incomplete transactions query", func(t *testing.T) {
		td.CleanTables(t)
		acc, pmID := seedAccount(t)
		old := now.Add(-time.Hour)
		_, err := dao.InsertPaymentWithFirstTransaction(ctx, newPayment(acc.ID, pmID, "pay-3", old), newTxn("old-pending", domain.TransactionStatusPending, old))
		require.NoError(t, err)
		_, err = dao.InsertPaymentWithFirstTransaction(ctx, newPayment(acc.ID, pmID, "pay-4", now), newTxn("new-pending", domain.TransactionStatusPending, now))
		require.NoError(t, err)

		txns, err := dao.GetTransactionsByStatus(ctx,
			[]domain.TransactionStatus{domain.TransactionStatusPending, domain.TransactionStatusUnknown},
			now.Add(-time.Minute), 100)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, "old-pending", txns[0].TransactionExternalKey)
	})

	t.Run("payment methods and accounts", func(t *testing.T) {
		td.CleanTables(t)
		acc, pmID := seedAccount(t)

		got, err := accounts.GetAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.ExternalKey, got.ExternalKey)
		require.NotNil(t, got.DefaultPaymentMethodID)
		assert.Equal(t, pmID, *got.DefaultPaymentMethodID)

		_, err = accounts.GetAccount(ctx, uuid.New())
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeAccountNotFound))

		deleted := uuid.New()
		require.NoError(t, dao.InsertPaymentMethod(ctx, domain.PaymentMethod{ID: deleted, AccountID: acc.ID, PluginName: "bank"}))
		_, err = dao.GetPaymentMethod(ctx, deleted, false)
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidPaymentMethod))
		pm, err := dao.GetPaymentMethod(ctx, deleted, true)
		require.NoError(t, err)
		assert.False(t, pm.IsActive)
	})

	t.Run("attempts", func(t *testing.T) {
		td.CleanTables(t)
		acc, _ := seedAccount(t)
		a := &domain.PaymentAttempt{
			ID:                     uuid.New(),
			AccountID:              acc.ID,
			TransactionExternalKey: "att-1",
			TransactionType:        domain.TransactionTypePurchase,
			StateName:              "INIT",
			Amount:                 decimal.NewFromInt(5),
			Currency:               "USD",
			PluginName:             "a,b",
			Properties:             []byte(`[{"key":"k","value":"v"}]`),
			CreatedAt:              now.Add(-time.Hour),
			UpdatedAt:              now.Add(-time.Hour),
		}
		require.NoError(t, dao.InsertAttempt(ctx, a))

		txnID := uuid.New()
		require.NoError(t, dao.UpdateAttempt(ctx, a.ID, &txnID, "RETRIED"))
		require.NoError(t, dao.UpdateAttempt(ctx, a.ID, nil, "INIT"))

		got, err := dao.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "INIT", got.StateName)
		require.NotNil(t, got.TransactionID)
		assert.Equal(t, txnID, *got.TransactionID)
		assert.Equal(t, []string{"a", "b"}, got.ControlPluginNames())
		assert.JSONEq(t, `[{"key":"k","value":"v"}]`, string(got.Properties))

		stuck, err := dao.GetAttemptsByState(ctx, "INIT", now.Add(-time.Minute), 100)
		require.NoError(t, err)
		assert.Len(t, stuck, 1)

		err = dao.UpdateAttempt(ctx, uuid.New(), nil, "SUCCESS")
		assert.True(t, domain.IsErrorCode(err, domain.ErrCodeAttemptNotFound))
	})

	t.Run("retry queue claims each notification once", func(t *testing.T) {
		td.CleanTables(t)
		q := postgres.NewRetryQueue(td.DB, time.Hour)

		due := domain.RetryNotification{AttemptID: uuid.New(), TransactionExternalKey: "r1", PluginName: "backoff"}
		later := domain.RetryNotification{AttemptID: uuid.New(), TransactionExternalKey: "r2"}
		require.NoError(t, q.Schedule(ctx, due, now.Add(-time.Minute)))
		require.NoError(t, q.Schedule(ctx, later, now.Add(time.Hour)))

		claimed, err := q.ClaimDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "r1", claimed[0].TransactionExternalKey)
		assert.Nil(t, claimed[0].PaymentID)

		again, err := q.ClaimDue(ctx, now, 10)
		require.NoError(t, err)
		assert.Empty(t, again)

		// Past the visibility window an unfinished claim is handed out again.
		reclaimed, err := q.ClaimDue(ctx, now.Add(2*time.Hour), 10)
		require.NoError(t, err)
		assert.Len(t, reclaimed, 2)

		for _, n := range reclaimed {
			require.NoError(t, q.Complete(ctx, n.ID))
		}
		empty, err := q.ClaimDue(ctx, now.Add(3*time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("advisory locker excludes concurrent holders", func(t *testing.T) {
		locker := postgres.NewLocker(td.DB, 2, 10*time.Millisecond)

		lock, err := locker.Lock(ctx, "acct-1")
		require.NoError(t, err)

		_, err = locker.Lock(ctx, "acct-1")
		assert.True(t, errors.Is(err, ports.ErrLockFailed))

		other, err := locker.Lock(ctx, "acct-2")
		require.NoError(t, err)
		require.NoError(t, other.Release(ctx))

		require.NoError(t, lock.Release(ctx))
		relocked, err := locker.Lock(ctx, "acct-1")
		require.NoError(t, err)
		require.NoError(t, relocked.Release(ctx))
	})
}
