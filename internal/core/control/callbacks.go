package control

import (
	"context"
	"encoding/json"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/google/uuid"
)

func (r *Runner) leavingState(st *callState) statemachine.LeavingFunc {
	return func(ctx context.Context, from *statemachine.State) error {
		if st.isRetry {
			if err := r.dao.UpdateAttempt(ctx, st.attempt.ID, nil, statemachine.ControlStateInit); err != nil {
				return &statemachine.OperationError{Result: statemachine.ResultException, Err: err}
			}
			return nil
		}

		if st.validateKey {
			if err := r.payments.ValidateTransactionExternalKey(ctx, st.req.TransactionExternalKey); err != nil {
				return &statemachine.OperationError{Result: statemachine.ResultException, Err: err}
			}
		}

		props, err := json.Marshal(st.req.Properties)
		if err != nil {
			return &statemachine.OperationError{Result: statemachine.ResultException, Err: err}
		}

		now := r.now()
		attempt := &domain.PaymentAttempt{
			ID:                     uuid.New(),
			AccountID:              st.req.Account.ID,
			PaymentMethodID:        st.req.PaymentMethodID,
			PaymentExternalKey:     st.req.PaymentExternalKey,
			TransactionExternalKey: st.req.TransactionExternalKey,
			TransactionType:        st.req.TransactionType,
			StateName:              statemachine.ControlStateInit,
			Amount:                 st.req.Amount,
			Currency:               st.req.Currency,
			PluginName:             domain.JoinPluginNames(st.pluginNames),
			Properties:             props,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if attempt.Currency == "" {
			attempt.Currency = st.req.Account.Currency
		}
		if err := r.dao.InsertAttempt(ctx, attempt); err != nil {
			return &statemachine.OperationError{Result: statemachine.ResultException, Err: err}
		}
		st.attempt = attempt
		id := attempt.ID
		st.req.AttemptID = &id
		return nil
	}
}

func (r *Runner) enteringState(st *callState) statemachine.EnteringFunc {
	return func(ctx context.Context, to *statemachine.State, result statemachine.OperationResult) error {
		if st.attempt == nil {
			return nil
		}

		var txnID *uuid.UUID
		if st.transaction != nil {
			id := st.transaction.ID
			txnID = &id
		}
		if err := r.dao.UpdateAttempt(ctx, st.attempt.ID, txnID, to.Name); err != nil {
			r.logger.Error("failed to update payment attempt",
				"attempt_id", st.attempt.ID,
				"state", to.Name,
				"error", err)
			return domain.NewInternalError("failed to update payment attempt", err)
		}

		if to.Name == statemachine.ControlStateRetried {
			r.scheduleRetry(ctx, st)
		}
		return nil
	}
}

// scheduleRetry is fire and forget relative to the call's own outcome.
func (r *Runner) scheduleRetry(ctx context.Context, st *callState) {
	when := st.getRetryDate()
	if when == nil {
		r.logger.Error("attempt entered RETRIED without a retry date", "attempt_id", st.attempt.ID)
		return
	}

	n := domain.RetryNotification{
		ID:                     uuid.New(),
		AttemptID:              st.attempt.ID,
		TransactionExternalKey: st.req.TransactionExternalKey,
		PluginName:             st.attempt.PluginName,
		EffectiveDate:          *when,
	}
	if st.result != nil {
		id := st.result.ID
		n.PaymentID = &id
	} else if st.req.PaymentID != nil {
		id := *st.req.PaymentID
		n.PaymentID = &id
	}

	if err := r.scheduler.Schedule(ctx, n, *when); err != nil {
		r.logger.Error("failed to schedule payment retry",
			"attempt_id", st.attempt.ID,
			"retry_at", *when,
			"error", err)
		return
	}
	r.logger.Info("payment retry scheduled",
		"attempt_id", st.attempt.ID,
		"transaction_external_key", n.TransactionExternalKey,
		"retry_at", *when)
}

func decodeProperties(raw []byte) ([]domain.PluginProperty, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var props []domain.PluginProperty
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, err
	}
	return props, nil
}
