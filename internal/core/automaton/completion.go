package automaton

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/shopspring/decimal"
)

// CompleteFromPlugin settles an incomplete transaction from what the plugin
// now reports. A nil info settles it as a plugin failure. The payment state
// only moves when txn is the payment's latest transaction.
func (r *Runner) CompleteFromPlugin(ctx context.Context, txn *domain.PaymentTransaction, info *domain.PluginTransactionInfo) (*domain.Payment, error) {
	payment, err := r.dao.GetPayment(ctx, txn.PaymentID)
	if err != nil {
		return nil, err
	}

	completion := domain.TransactionCompletion{
		PaymentID:       payment.ID,
		StateName:       payment.StateName,
		TransactionID:   txn.ID,
		Status:          domain.TransactionStatusFromPlugin(info),
		ProcessedAmount: decimal.Zero,
	}
	if info != nil {
		completion.ProcessedAmount = info.Amount
		completion.ProcessedCurrency = info.Currency
		completion.GatewayErrorCode = info.GatewayErrorCode
		completion.GatewayErrorMsg = info.GatewayErrorMessage
	}

	if last := payment.LastTransaction(); last != nil && last.ID == txn.ID {
		start, err := r.machine.InitialState(txn.TransactionType)
		if err != nil {
			return nil, mapRunError(err)
		}
		op, err := r.machine.Operation(txn.TransactionType)
		if err != nil {
			return nil, mapRunError(err)
		}
		result := resultFromPlugin(info)
		to, err := r.machine.FindTransition(start, op, result)
		if err != nil {
			return nil, mapRunError(err)
		}
		completion.StateName = to.Name
		if result == statemachine.ResultSuccess || result == statemachine.ResultPending {
			completion.LastSuccessStateName = to.Name
		}
	}

	if err := r.dao.UpdatePaymentAndTransactionOnCompletion(ctx, completion); err != nil {
		return nil, err
	}

	r.logger.Info("incomplete transaction settled",
		"payment_id", payment.ID,
		"transaction_id", txn.ID,
		"status", completion.Status,
		"state", completion.StateName)

	pid, tid := payment.ID, txn.ID
	r.publish(ctx, domain.Event{
		Type:            domain.EventPaymentInfo,
		AccountID:       payment.AccountID,
		PaymentID:       &pid,
		TransactionID:   &tid,
		TransactionType: txn.TransactionType,
		Status:          completion.Status,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
	})

	return r.dao.GetPayment(ctx, payment.ID)
}
