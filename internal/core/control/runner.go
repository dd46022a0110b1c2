// Package control wraps the payment automaton with control plugins: they may
// abort or adjust a call before it happens and decide whether and when a
// failed call is retried.
package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/automaton"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/google/uuid"
)

type Runner struct {
	machine    *statemachine.ControlStateMachine
	payments   *automaton.Runner
	dao        ports.PaymentDao
	accounts   ports.AccountAPI
	controls   ports.ControlPluginRegistry
	dispatcher *dispatcher.PluginDispatcher
	scheduler  ports.RetryScheduler
	logger     *slog.Logger
	now        func() time.Time
}

func NewRunner(
	machine *statemachine.ControlStateMachine,
	payments *automaton.Runner,
	dao ports.PaymentDao,
	accounts ports.AccountAPI,
	controls ports.ControlPluginRegistry,
	d *dispatcher.PluginDispatcher,
	scheduler ports.RetryScheduler,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		machine:    machine,
		payments:   payments,
		dao:        dao,
		accounts:   accounts,
		controls:   controls,
		dispatcher: d,
		scheduler:  scheduler,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// callState is owned by one control invocation. retryDate is the only field
// a dispatched task may still touch after a timeout.
type callState struct {
	req         automaton.Request
	pluginNames []string
	isRetry     bool
	validateKey bool

	attempt     *domain.PaymentAttempt
	aborted     bool
	result      *domain.Payment
	transaction *domain.PaymentTransaction

	mu        sync.Mutex
	retryDate *time.Time
}

// setRetryDate keeps the earliest date offered.
func (st *callState) setRetryDate(t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.retryDate == nil || t.Before(*st.retryDate) {
		st.retryDate = &t
	}
}

func (st *callState) getRetryDate() *time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.retryDate
}

// resultOnException is FAILURE when a retry date is already known and
// EXCEPTION otherwise. FAILURE routes to RETRIED, EXCEPTION to ABORTED.
func (st *callState) resultOnException() statemachine.OperationResult {
	if st.getRetryDate() != nil {
		return statemachine.ResultFailure
	}
	return statemachine.ResultException
}

// Run executes req under the named control plugins.
func (r *Runner) Run(ctx context.Context, req automaton.Request, pluginNames []string) (*domain.Payment, error) {
	if req.Account == nil {
		return nil, domain.NewInvalidRequestError(errors.New("account is required"))
	}
	st := &callState{pluginNames: pluginNames, validateKey: req.TransactionExternalKey != ""}
	if req.TransactionExternalKey == "" {
		req.TransactionExternalKey = uuid.NewString()
	}
	st.req = req
	return r.run(ctx, r.machine.Init, st)
}

// RetryAttempt re-enters the control machine from RETRIED for a scheduled
// retry. Notifications for attempts that moved on are dropped.
func (r *Runner) RetryAttempt(ctx context.Context, n domain.RetryNotification) (*domain.Payment, error) {
	attempt, err := r.dao.GetAttempt(ctx, n.AttemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StateName != statemachine.ControlStateRetried {
		r.logger.Info("dropping retry for attempt no longer awaiting retry",
			"attempt_id", attempt.ID,
			"state", attempt.StateName)
		return nil, nil
	}

	req, err := r.requestFromAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if n.PaymentID != nil {
		id := *n.PaymentID
		req.PaymentID = &id
	}

	st := &callState{req: req, pluginNames: attempt.ControlPluginNames(), isRetry: true, attempt: attempt}
	return r.run(ctx, r.machine.Retried, st)
}

func (r *Runner) run(ctx context.Context, from *statemachine.State, st *callState) (*domain.Payment, error) {
	_, err := r.machine.RunOperation(ctx, from, r.machine.Operation, statemachine.Callbacks{
		Leaving:   r.leavingState(st),
		Operation: r.operation(st),
		Entering:  r.enteringState(st),
	})
	if err == nil {
		return st.result, nil
	}
	return st.result, r.mapError(st, err)
}

func (r *Runner) mapError(st *callState, err error) error {
	if errors.Is(err, statemachine.ErrMissingEntry) {
		return domain.NewInternalError("control state machine has no entry", err)
	}

	var opErr *statemachine.OperationError
	if errors.As(err, &opErr) && opErr.Err == nil {
		switch {
		case st.aborted:
			return domain.NewPaymentAbortedError(st.req.TransactionExternalKey)
		case st.result != nil:
			// The transaction was recorded as failed; the payment says so.
			return nil
		default:
			return domain.NewInternalError(opErr.Error(), nil)
		}
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		return de
	}
	return domain.NewInternalError("control operation failed", err)
}

func (r *Runner) requestFromAttempt(ctx context.Context, a *domain.PaymentAttempt) (automaton.Request, error) {
	account, err := r.accounts.GetAccount(ctx, a.AccountID)
	if err != nil {
		return automaton.Request{}, err
	}
	props, err := decodeProperties(a.Properties)
	if err != nil {
		return automaton.Request{}, domain.NewInternalError("failed to decode attempt properties", err)
	}
	id := a.ID
	return automaton.Request{
		TransactionType:        a.TransactionType,
		Account:                account,
		PaymentMethodID:        a.PaymentMethodID,
		PaymentExternalKey:     a.PaymentExternalKey,
		TransactionExternalKey: a.TransactionExternalKey,
		Amount:                 a.Amount,
		Currency:               a.Currency,
		Properties:             props,
		AttemptID:              &id,
	}, nil
}
