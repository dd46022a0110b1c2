package control

import (
	"context"
	"errors"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
)

// CompleteRun finishes an attempt stuck in INIT without calling any payment
// plugin: SUCCESS when its transaction succeeded or is pending, ABORTED when
// it failed or was never recorded. Attempts whose transaction is still in
// INIT or UNKNOWN are left alone and reported as not completed; the janitor
// settles the transaction first.
func (r *Runner) CompleteRun(ctx context.Context, attempt *domain.PaymentAttempt) (bool, error) {
	txn, payment, err := r.findAttemptTransaction(ctx, attempt)
	if err != nil {
		return false, err
	}
	if txn != nil && txn.Status.IsUnsettled() {
		return false, nil
	}

	req, err := r.requestFromAttempt(ctx, attempt)
	if err != nil {
		return false, err
	}
	st := &callState{req: req, pluginNames: attempt.ControlPluginNames(), attempt: attempt, result: payment, transaction: txn}

	_, err = r.machine.RunOperation(ctx, r.machine.Init, r.machine.Operation, statemachine.Callbacks{
		Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
			if txn != nil && (txn.Status == domain.TransactionStatusSuccess || txn.Status == domain.TransactionStatusPending) {
				cc := r.controlContext(ctx, st, req)
				cc.AttemptID = attempt.ID
				r.onSuccessCalls(ctx, st.pluginNames, successContext(cc, req, payment, txn))
				return statemachine.ResultSuccess, nil
			}
			return statemachine.ResultException, nil
		},
		Entering: r.enteringState(st),
	})

	if err != nil {
		// ABORTED is reached through EXCEPTION without a cause.
		var opErr *statemachine.OperationError
		if !errors.As(err, &opErr) || opErr.Err != nil {
			return false, r.mapError(st, err)
		}
	}

	r.logger.Info("payment attempt completed",
		"attempt_id", attempt.ID,
		"transaction_found", txn != nil)
	return true, nil
}

func (r *Runner) findAttemptTransaction(ctx context.Context, attempt *domain.PaymentAttempt) (*domain.PaymentTransaction, *domain.Payment, error) {
	txns, err := r.dao.GetTransactionsByExternalKey(ctx, attempt.TransactionExternalKey)
	if err != nil {
		return nil, nil, err
	}

	var found *domain.PaymentTransaction
	for _, t := range txns {
		if attempt.TransactionID != nil && t.ID == *attempt.TransactionID {
			found = t
			break
		}
		if t.AttemptID != nil && *t.AttemptID == attempt.ID {
			found = t
		}
	}
	if found == nil {
		return nil, nil, nil
	}

	payment, err := r.dao.GetPayment(ctx, found.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	return found, payment, nil
}
