package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/adapters/memory"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/config"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/automaton"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports/mocks"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/worker"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type attemptCompleterFunc func(ctx context.Context, a *domain.PaymentAttempt) (bool, error)

func (f attemptCompleterFunc) CompleteRun(ctx context.Context, a *domain.PaymentAttempt) (bool, error) {
	return f(ctx, a)
}

type janitorFixture struct {
	janitor *worker.Janitor
	dao     *memory.PaymentDao
	plugin  *mocks.PaymentPlugin
	account domain.Account
	pmID    uuid.UUID
	settled []uuid.UUID
}

func newJanitorFixture(t *testing.T) *janitorFixture {
	t.Helper()
	logger := discardLogger()

	psm, err := statemachine.NewPaymentStateMachine()
	require.NoError(t, err)

	f := &janitorFixture{
		dao:    memory.NewPaymentDao(),
		plugin: &mocks.PaymentPlugin{},
		pmID:   uuid.New(),
	}
	f.account = domain.Account{ID: uuid.New(), ExternalKey: "acct-janitor", Currency: "USD", DefaultPaymentMethodID: &f.pmID}
	f.dao.PutPaymentMethod(domain.PaymentMethod{ID: f.pmID, AccountID: f.account.ID, PluginName: "bank", IsActive: true})

	registry := &mocks.Registry{Plugins: map[string]ports.PaymentPlugin{"bank": f.plugin}}
	d := dispatcher.NewPluginDispatcher(memory.NewLocker(1, time.Millisecond), config.PaymentConfig{PluginTimeout: time.Second, PoolSize: 2}, logger)
	runner := automaton.NewRunner(psm, f.dao, registry, d, nil, logger)

	completer := attemptCompleterFunc(func(ctx context.Context, a *domain.PaymentAttempt) (bool, error) {
		f.settled = append(f.settled, a.ID)
		return true, nil
	})

	f.janitor = worker.NewJanitor(f.dao, memory.NewAccountAPI(f.account), runner, completer, d, config.JanitorConfig{
		Interval:       time.Second,
		PendingTimeout: 10 * time.Minute,
		AttemptCutoff:  10 * time.Minute,
		BatchSize:      500,
	}, logger)
	return f
}

// seed stores a payment whose only transaction is stuck in status.
func (f *janitorFixture) seed(t *testing.T, key string, status domain.TransactionStatus, age time.Duration) (*domain.Payment, *domain.PaymentTransaction) {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	p := &domain.Payment{
		ID:              uuid.New(),
		AccountID:       f.account.ID,
		PaymentMethodID: f.pmID,
		ExternalKey:     "pay-" + key,
		StateName:       "PURCHASE_ERRORED",
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	txn := &domain.PaymentTransaction{
		ID:                     uuid.New(),
		TransactionExternalKey: key,
		TransactionType:        domain.TransactionTypePurchase,
		Status:                 status,
		Amount:                 decimal.NewFromInt(25),
		Currency:               "USD",
		CreatedAt:              created,
		UpdatedAt:              created,
	}
	stored, err := f.dao.InsertPaymentWithFirstTransaction(context.Background(), p, txn)
	require.NoError(t, err)
	return stored, stored.Transactions[0]
}

func (f *janitorFixture) pluginReports(p *domain.Payment, infos []*domain.PluginTransactionInfo, err error) {
	f.plugin.On("GetPaymentInfo", mock.Anything, mock.MatchedBy(func(r domain.PluginRequest) bool {
		return r.PaymentID == p.ID
	})).Return(infos, err)
}

func TestJanitor_ReconcilesIncompleteTransactions(t *testing.T) {
	f := newJanitorFixture(t)
	ctx := context.Background()

	unknownDone, unknownDoneTxn := f.seed(t, "unknown-processed", domain.TransactionStatusUnknown, time.Hour)
	f.pluginReports(unknownDone, []*domain.PluginTransactionInfo{{
		TransactionID: unknownDoneTxn.ID,
		Status:        domain.PluginStatusProcessed,
		Amount:        decimal.NewFromInt(25),
		Currency:      "USD",
	}}, nil)

	stalePending, stalePendingTxn := f.seed(t, "pending-stale", domain.TransactionStatusPending, time.Hour)
	f.pluginReports(stalePending, []*domain.PluginTransactionInfo{{
		TransactionID: stalePendingTxn.ID,
		Status:        domain.PluginStatusPending,
	}}, nil)

	unknownMissing, _ := f.seed(t, "unknown-missing", domain.TransactionStatusUnknown, time.Hour)
	f.pluginReports(unknownMissing, nil, nil)

	unreachable, _ := f.seed(t, "unknown-unreachable", domain.TransactionStatusUnknown, time.Hour)
	f.pluginReports(unreachable, nil, errors.New("connection refused"))

	recent, _ := f.seed(t, "unknown-recent", domain.TransactionStatusUnknown, time.Minute)

	f.janitor.RunOnce(ctx)

	got, err := f.dao.GetPayment(ctx, unknownDone.ID)
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE_SUCCESS", got.StateName)
	assert.Equal(t, "PURCHASE_SUCCESS", got.LastSuccessStateName)
	assert.Equal(t, domain.TransactionStatusSuccess, got.Transactions[0].Status)
	assert.True(t, got.Transactions[0].ProcessedAmount.Equal(decimal.NewFromInt(25)))

	got, err = f.dao.GetPayment(ctx, stalePending.ID)
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE_FAILED", got.StateName)
	assert.Equal(t, domain.TransactionStatusPluginFailure, got.Transactions[0].Status)

	for _, p := range []*domain.Payment{unknownMissing, unreachable, recent} {
		got, err = f.dao.GetPayment(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusUnknown, got.Transactions[0].Status, p.ExternalKey)
		assert.Equal(t, "PURCHASE_ERRORED", got.StateName, p.ExternalKey)
	}

	f.plugin.AssertNumberOfCalls(t, "GetPaymentInfo", 4)
}

func TestJanitor_SettlesAbandonedInitTransactions(t *testing.T) {
	f := newJanitorFixture(t)
	ctx := context.Background()

	charged, chargedTxn := f.seed(t, "init-processed", domain.TransactionStatusInit, time.Hour)
	f.pluginReports(charged, []*domain.PluginTransactionInfo{{
		TransactionID: chargedTxn.ID,
		Status:        domain.PluginStatusProcessed,
		Amount:        decimal.NewFromInt(25),
		Currency:      "USD",
	}}, nil)

	unseen, _ := f.seed(t, "init-unseen", domain.TransactionStatusInit, time.Hour)
	f.pluginReports(unseen, nil, nil)

	f.janitor.RunOnce(ctx)

	got, err := f.dao.GetPayment(ctx, charged.ID)
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE_SUCCESS", got.StateName)
	assert.Equal(t, domain.TransactionStatusSuccess, got.Transactions[0].Status)

	got, err = f.dao.GetPayment(ctx, unseen.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusInit, got.Transactions[0].Status)
}

func TestJanitor_UnknownBecomesPending(t *testing.T) {
	f := newJanitorFixture(t)
	ctx := context.Background()

	p, txn := f.seed(t, "unknown-pending", domain.TransactionStatusUnknown, time.Hour)
	f.pluginReports(p, []*domain.PluginTransactionInfo{{TransactionID: txn.ID, Status: domain.PluginStatusPending}}, nil)

	f.janitor.RunOnce(ctx)

	got, err := f.dao.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE_PENDING", got.StateName)
	assert.Equal(t, domain.TransactionStatusPending, got.Transactions[0].Status)
}

func TestJanitor_CompletesStaleAttempts(t *testing.T) {
	f := newJanitorFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := func(state string, age time.Duration) uuid.UUID {
		a := &domain.PaymentAttempt{
			ID:                     uuid.New(),
			AccountID:              f.account.ID,
			TransactionExternalKey: "attempt-" + state,
			TransactionType:        domain.TransactionTypePurchase,
			StateName:              state,
			CreatedAt:              now.Add(-age),
			UpdatedAt:              now.Add(-age),
		}
		require.NoError(t, f.dao.InsertAttempt(ctx, a))
		return a.ID
	}
	stale := insert(statemachine.ControlStateInit, time.Hour)
	insert(statemachine.ControlStateInit, time.Minute)
	insert(statemachine.ControlStateRetried, time.Hour)

	f.janitor.RunOnce(ctx)

	assert.Equal(t, []uuid.UUID{stale}, f.settled)
}
