package automaton

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/shopspring/decimal"
)

func (r *Runner) enteringState(sc *StateContext) statemachine.EnteringFunc {
	return func(ctx context.Context, to *statemachine.State, result statemachine.OperationResult) error {
		if sc.transaction == nil {
			if !sc.req.IsAPIPayment {
				r.publish(ctx, domain.Event{
					Type:            domain.EventPaymentError,
					AccountID:       sc.req.Account.ID,
					PaymentID:       sc.paymentID,
					TransactionType: sc.req.TransactionType,
					Amount:          sc.req.Amount,
					Currency:        sc.currency,
					Message:         "no transaction recorded, entered " + to.Name,
				})
			}
			return nil
		}

		status := sc.completionStatus()
		completion := domain.TransactionCompletion{
			PaymentID:     sc.transaction.PaymentID,
			StateName:     to.Name,
			TransactionID: sc.transaction.ID,
			Status:        status,
		}
		if result == statemachine.ResultSuccess || result == statemachine.ResultPending {
			completion.LastSuccessStateName = to.Name
		}
		if info := sc.pluginInfo; info != nil {
			completion.ProcessedAmount = info.Amount
			completion.ProcessedCurrency = info.Currency
			completion.GatewayErrorCode = info.GatewayErrorCode
			completion.GatewayErrorMsg = info.GatewayErrorMessage
		} else {
			completion.ProcessedAmount = decimal.Zero
		}

		if err := r.dao.UpdatePaymentAndTransactionOnCompletion(ctx, completion); err != nil {
			r.logger.Error("failed to record transaction completion",
				"payment_id", completion.PaymentID,
				"transaction_id", completion.TransactionID,
				"state", to.Name,
				"error", err)
			return domain.NewInternalError("failed to record transaction completion", err)
		}
		sc.completion = &completion

		evt := domain.Event{
			Type:            domain.EventPaymentInfo,
			AccountID:       sc.req.Account.ID,
			PaymentID:       &completion.PaymentID,
			TransactionID:   &completion.TransactionID,
			TransactionType: sc.req.TransactionType,
			Status:          status,
			Amount:          sc.req.Amount,
			Currency:        sc.currency,
		}
		if err := sc.pluginErr; err != nil {
			evt.Type = domain.EventPaymentPluginError
			evt.Message = err.Error()
		}
		r.publish(ctx, evt)
		return nil
	}
}

func (r *Runner) publish(ctx context.Context, evt domain.Event) {
	if r.events == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = r.now()
	}
	if err := r.events.Publish(ctx, evt); err != nil {
		r.logger.Warn("failed to publish payment event",
			"event_type", evt.Type,
			"account_id", evt.AccountID,
			"error", err)
	}
}
