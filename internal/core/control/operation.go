package control

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/automaton"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/google/uuid"
)

type controlOutcome struct {
	result      statemachine.OperationResult
	cause       error
	aborted     bool
	payment     *domain.Payment
	transaction *domain.PaymentTransaction
}

// operation runs the whole control call under the account lock. The inner
// automaton run does not lock again.
func (r *Runner) operation(st *callState) statemachine.OperationFunc {
	return func(ctx context.Context) (statemachine.OperationResult, error) {
		req := st.req
		out, err := dispatcher.DispatchWithAccountLock(r.dispatcher, ctx, req.Account.ExternalKey, func(ctx context.Context) (controlOutcome, error) {
			return r.call(ctx, st, req), nil
		})
		if err != nil {
			r.logger.Warn("control call did not complete",
				"account", req.Account.ExternalKey,
				"attempt_id", req.AttemptID,
				"error", err)
			return st.resultOnException(), err
		}

		st.aborted = out.aborted
		st.result = out.payment
		st.transaction = out.transaction
		return out.result, out.cause
	}
}

func (r *Runner) call(ctx context.Context, st *callState, req automaton.Request) controlOutcome {
	cc := r.controlContext(ctx, st, req)

	prior, err := r.priorCalls(ctx, st.pluginNames, cc)
	if err != nil {
		return controlOutcome{result: statemachine.ResultException, cause: err}
	}
	if prior.Aborted {
		r.logger.Info("control plugin aborted payment",
			"attempt_id", cc.AttemptID,
			"transaction_external_key", req.TransactionExternalKey)
		return controlOutcome{result: statemachine.ResultException, aborted: true}
	}
	req = applyPriorResult(req, prior)

	req.ShouldLockAccount = false
	payment, err := r.payments.Run(ctx, req)
	txn := attemptTransaction(payment, cc.AttemptID, req.TransactionExternalKey)

	if err == nil && txn != nil &&
		(txn.Status == domain.TransactionStatusSuccess || txn.Status == domain.TransactionStatusPending) {
		r.onSuccessCalls(ctx, st.pluginNames, successContext(cc, req, payment, txn))
		return controlOutcome{result: statemachine.ResultSuccess, payment: payment, transaction: txn}
	}

	failed := cc
	failed.Err = err
	if payment != nil {
		id := payment.ID
		failed.PaymentID = &id
	}
	if date := r.onFailureCalls(ctx, st.pluginNames, failed); date != nil {
		st.setRetryDate(*date)
	}
	return controlOutcome{result: st.resultOnException(), cause: err, payment: payment, transaction: txn}
}

func (r *Runner) controlContext(ctx context.Context, st *callState, req automaton.Request) domain.ControlContext {
	cc := domain.ControlContext{
		AccountID:              req.Account.ID,
		PaymentMethodID:        req.PaymentMethodID,
		PaymentID:              req.PaymentID,
		PaymentExternalKey:     req.PaymentExternalKey,
		TransactionExternalKey: req.TransactionExternalKey,
		TransactionType:        req.TransactionType,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		Properties:             req.Properties,
		IsAPIPayment:           req.IsAPIPayment,
		RetryCount:             r.retryCount(ctx, req.TransactionExternalKey),
	}
	if cc.Currency == "" {
		cc.Currency = req.Account.Currency
	}
	if st.attempt != nil {
		cc.AttemptID = st.attempt.ID
	}
	return cc
}

// retryCount is the number of failed transactions already recorded under the key.
func (r *Runner) retryCount(ctx context.Context, key string) int {
	txns, err := r.dao.GetTransactionsByExternalKey(ctx, key)
	if err != nil {
		r.logger.Warn("failed to count previous attempts", "transaction_external_key", key, "error", err)
		return 0
	}
	n := 0
	for _, t := range txns {
		if t.Status.IsFailure() {
			n++
		}
	}
	return n
}

func applyPriorResult(req automaton.Request, prior *domain.PriorCallResult) automaton.Request {
	if prior.AdjustedAmount != nil {
		req.Amount = *prior.AdjustedAmount
	}
	if prior.AdjustedCurrency != "" {
		req.Currency = prior.AdjustedCurrency
	}
	if prior.AdjustedPaymentMethodID != nil {
		id := *prior.AdjustedPaymentMethodID
		req.PaymentMethodID = &id
	}
	if prior.AdjustedProperties != nil {
		req.Properties = prior.AdjustedProperties
	}
	return req
}

func successContext(cc domain.ControlContext, req automaton.Request, p *domain.Payment, txn *domain.PaymentTransaction) domain.ControlContext {
	paymentID, txnID := p.ID, txn.ID
	cc.PaymentID = &paymentID
	cc.PaymentExternalKey = p.ExternalKey
	cc.TransactionID = &txnID
	cc.Amount = txn.Amount
	cc.Currency = txn.Currency
	cc.ProcessedAmount = txn.ProcessedAmount
	cc.ProcessedCurrency = txn.ProcessedCurrency
	cc.Properties = req.Properties
	return cc
}

// attemptTransaction picks the latest transaction this attempt produced,
// falling back to the latest one carrying the external key.
func attemptTransaction(p *domain.Payment, attemptID uuid.UUID, key string) *domain.PaymentTransaction {
	if p == nil {
		return nil
	}
	var byKey *domain.PaymentTransaction
	for i := len(p.Transactions) - 1; i >= 0; i-- {
		t := p.Transactions[i]
		if t.AttemptID != nil && *t.AttemptID == attemptID {
			return t
		}
		if byKey == nil && t.TransactionExternalKey == key {
			byKey = t
		}
	}
	return byKey
}
