package automaton

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/google/uuid"
)

// leavingState guarantees a durable transaction row before any plugin call.
// A failure still carries EXCEPTION so the machine enters its errored state.
func (r *Runner) leavingState(sc *StateContext) statemachine.LeavingFunc {
	return func(ctx context.Context, from *statemachine.State) error {
		if sc.transaction != nil {
			return nil
		}
		if err := r.persistTransaction(ctx, sc, from); err != nil {
			r.logger.Error("failed to record transaction before plugin call",
				"transaction_type", sc.req.TransactionType,
				"transaction_external_key", sc.req.TransactionExternalKey,
				"error", err)
			return &statemachine.OperationError{Result: statemachine.ResultException, Err: err}
		}
		return nil
	}
}

func (r *Runner) persistTransaction(ctx context.Context, sc *StateContext, from *statemachine.State) error {
	now := r.now()
	txn := &domain.PaymentTransaction{
		ID:                     uuid.New(),
		AttemptID:              sc.req.AttemptID,
		TransactionExternalKey: sc.req.TransactionExternalKey,
		TransactionType:        sc.req.TransactionType,
		Status:                 domain.TransactionStatusInit,
		Amount:                 sc.req.Amount,
		Currency:               sc.currency,
		EffectiveDate:          now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if sc.payment == nil {
		paymentID := uuid.New()
		if sc.paymentExternalKey == "" {
			sc.paymentExternalKey = paymentID.String()
		}
		payment := &domain.Payment{
			ID:              paymentID,
			AccountID:       sc.req.Account.ID,
			PaymentMethodID: sc.paymentMethodID,
			ExternalKey:     sc.paymentExternalKey,
			StateName:       from.Name,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		txn.PaymentID = paymentID

		saved, err := r.dao.InsertPaymentWithFirstTransaction(ctx, payment, txn)
		if err != nil {
			return err
		}
		sc.withPayment(saved)
		sc.transaction = saved.Transaction(txn.ID)
		if sc.transaction == nil {
			sc.transaction = txn
		}
		return nil
	}

	if sc.req.TransactionType != domain.TransactionTypeChargeback {
		if existing := sc.payment.Currency(); existing != "" && existing != sc.currency {
			return domain.NewInvalidCurrencyError(sc.payment.ID, existing, sc.currency)
		}
	}

	txn.PaymentID = sc.payment.ID
	saved, err := r.dao.UpdatePaymentWithNewTransaction(ctx, sc.payment.ID, txn)
	if err != nil {
		return err
	}
	sc.transaction = saved
	return nil
}
