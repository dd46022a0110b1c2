// Package automaton drives a single payment transaction through the payment
// state machine: durable record, plugin call, durable outcome.
package automaton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
)

type Runner struct {
	machine    *statemachine.PaymentStateMachine
	dao        ports.PaymentDao
	plugins    ports.PluginRegistry
	dispatcher *dispatcher.PluginDispatcher
	events     ports.EventBus
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewRunner(
	machine *statemachine.PaymentStateMachine,
	dao ports.PaymentDao,
	plugins ports.PluginRegistry,
	d *dispatcher.PluginDispatcher,
	events ports.EventBus,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		machine:    machine,
		dao:        dao,
		plugins:    plugins,
		dispatcher: d,
		events:     events,
		validate:   validator.New(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one transaction. The returned payment reflects the recorded
// attempt, including failed ones. When the plugin threw or timed out the
// payment is returned together with the error.
//
// With ShouldLockAccount the account lock is held from payment resolution
// through the outcome write; only the plugin call is bounded by the dispatcher
// timeout. If the lock cannot be taken the attempt is still recorded, with the
// lock failure as its outcome and no plugin call.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.Payment, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, domain.NewInvalidRequestError(err)
	}
	if req.Amount.IsNegative() {
		return nil, domain.NewInvalidRequestError(fmt.Errorf("amount %s is negative", req.Amount))
	}

	if !req.ShouldLockAccount {
		return r.run(ctx, req, nil)
	}

	var (
		payment *domain.Payment
		runErr  error
	)
	lockErr := r.dispatcher.WithAccountLock(ctx, req.Account.ExternalKey, func(ctx context.Context) error {
		payment, runErr = r.run(ctx, req, nil)
		return nil
	})
	if lockErr != nil {
		return r.run(ctx, req, lockErr)
	}
	return payment, runErr
}

func (r *Runner) run(ctx context.Context, req Request, lockErr error) (*domain.Payment, error) {
	tc := callbackRegistry[req.TransactionType]
	op, err := r.machine.Operation(req.TransactionType)
	if err != nil {
		return nil, mapRunError(err)
	}

	existing, err := r.resolvePayment(ctx, req)
	if err != nil {
		return nil, mapRunError(err)
	}
	if req.TransactionExternalKey != "" {
		if err := r.ValidateTransactionExternalKey(ctx, req.TransactionExternalKey); err != nil {
			return nil, mapRunError(err)
		}
	}

	sc := newStateContext(req)
	sc.lockErr = lockErr
	var from *statemachine.State
	if existing != nil {
		sc.withPayment(existing)
		if req.PaymentMethodID != nil && *req.PaymentMethodID != existing.PaymentMethodID {
			return nil, domain.NewInvalidPaymentMethodError(existing.ID, existing.PaymentMethodID, *req.PaymentMethodID)
		}
		if from, err = r.startState(existing, req.TransactionType, op); err != nil {
			return nil, mapRunError(err)
		}
	} else {
		if !tc.opening {
			return nil, domain.NewPaymentNotFoundError(describePaymentKeys(req))
		}
		switch {
		case req.PaymentMethodID != nil:
			sc.paymentMethodID = *req.PaymentMethodID
		case req.Account.DefaultPaymentMethodID != nil:
			sc.paymentMethodID = *req.Account.DefaultPaymentMethodID
		default:
			return nil, domain.NewMissingDefaultPaymentMethodError(req.Account.ID)
		}
		if from, err = r.machine.InitialState(req.TransactionType); err != nil {
			return nil, mapRunError(err)
		}
	}

	name, plugin, err := r.PaymentPlugin(ctx, sc.paymentMethodID, tc.allowDeletedPaymentMethod)
	if err != nil {
		return nil, mapRunError(err)
	}
	sc.withPlugin(name, plugin)

	// A PENDING transaction under the same key is completed in place.
	if existing != nil {
		for _, t := range existing.Transactions {
			if t.TransactionExternalKey == sc.req.TransactionExternalKey &&
				t.TransactionType == req.TransactionType &&
				t.Status == domain.TransactionStatusPending {
				sc.transaction = t
			}
		}
	}

	to, runErr := r.machine.RunOperation(ctx, from, op, r.callbacks(sc, tc))

	var payment *domain.Payment
	if sc.paymentID != nil {
		p, err := r.dao.GetPayment(ctx, *sc.paymentID)
		if err != nil {
			// The outcome is already persisted; a failed read must not report
			// the attempt itself as failed.
			r.logger.Error("failed to reload payment",
				"payment_id", *sc.paymentID,
				"transaction_type", req.TransactionType,
				"error", err)
			p = sc.snapshot()
		}
		payment = p
	}

	if runErr != nil {
		r.logger.Warn("payment operation did not complete",
			"transaction_type", req.TransactionType,
			"transaction_external_key", sc.req.TransactionExternalKey,
			"account", req.Account.ExternalKey,
			"error", runErr)
		return payment, mapRunError(runErr)
	}

	r.logger.Info("payment operation completed",
		"payment_id", payment.ID,
		"transaction_type", req.TransactionType,
		"state", to.Name)
	return payment, nil
}

// resolvePayment finds the payment a request targets: explicit id first, then
// the transaction external key, then the payment external key.
func (r *Runner) resolvePayment(ctx context.Context, req Request) (*domain.Payment, error) {
	if req.PaymentID != nil {
		return r.dao.GetPayment(ctx, *req.PaymentID)
	}

	if req.TransactionExternalKey != "" {
		txns, err := r.dao.GetTransactionsByExternalKey(ctx, req.TransactionExternalKey)
		if err != nil {
			return nil, err
		}
		id, err := paymentIDFromTransactions(req.TransactionExternalKey, txns)
		if err != nil {
			return nil, err
		}
		if id != nil {
			return r.dao.GetPayment(ctx, *id)
		}
	}

	if req.PaymentExternalKey != "" {
		p, err := r.dao.GetPaymentByExternalKey(ctx, req.PaymentExternalKey)
		if domain.IsErrorCode(err, domain.ErrCodePaymentNotFound) {
			return nil, nil
		}
		return p, err
	}
	return nil, nil
}

// paymentIDFromTransactions prefers a transaction that is not a definitive
// failure. Failures alone may only point at one payment.
func paymentIDFromTransactions(key string, txns []*domain.PaymentTransaction) (*uuid.UUID, error) {
	if len(txns) == 0 {
		return nil, nil
	}
	for _, t := range txns {
		if !t.Status.IsFailure() {
			id := t.PaymentID
			return &id, nil
		}
	}

	id := txns[0].PaymentID
	for _, t := range txns[1:] {
		if t.PaymentID != id {
			return nil, domain.NewInternalError(
				fmt.Sprintf("failed transactions for key %s belong to more than one payment", key), nil)
		}
	}
	return &id, nil
}

// ValidateTransactionExternalKey rejects a key already used by a successful
// transaction or one that is still in flight or unknown.
func (r *Runner) ValidateTransactionExternalKey(ctx context.Context, key string) error {
	txns, err := r.dao.GetTransactionsByExternalKey(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range txns {
		if t.Status == domain.TransactionStatusSuccess || t.Status.IsUnsettled() {
			return domain.NewTransactionKeyExistsError(key)
		}
	}
	return nil
}

// PaymentPlugin resolves the plugin serving a payment method.
func (r *Runner) PaymentPlugin(ctx context.Context, paymentMethodID uuid.UUID, includeDeleted bool) (string, ports.PaymentPlugin, error) {
	pm, err := r.dao.GetPaymentMethod(ctx, paymentMethodID, includeDeleted)
	if err != nil {
		return "", nil, err
	}
	plugin, ok := r.plugins.GetPlugin(pm.PluginName)
	if !ok {
		return "", nil, domain.NewUnknownPluginError(pm.PluginName)
	}
	return pm.PluginName, plugin, nil
}

func (r *Runner) startState(p *domain.Payment, t domain.TransactionType, op *statemachine.Operation) (*statemachine.State, error) {
	if p.LastSuccessStateName == "" {
		if !IsOpening(t) {
			return nil, domain.NewInvalidOperationError(t, p.StateName)
		}
		return r.machine.InitialState(t)
	}

	st, err := r.machine.State(p.LastSuccessStateName)
	if err != nil {
		return nil, err
	}
	if !r.machine.CanRun(st, op) {
		return nil, domain.NewInvalidOperationError(t, st.Name)
	}
	return st, nil
}

func describePaymentKeys(req Request) string {
	if req.PaymentExternalKey != "" {
		return req.PaymentExternalKey
	}
	return req.TransactionExternalKey
}

func mapRunError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, statemachine.ErrMissingEntry) {
		return domain.NewInternalError("payment state machine has no entry", err)
	}

	var opErr *statemachine.OperationError
	if errors.As(err, &opErr) && opErr.Err == nil {
		return domain.NewInternalError(opErr.Error(), nil)
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return de
	}
	return domain.NewInternalError("payment operation failed", err)
}
