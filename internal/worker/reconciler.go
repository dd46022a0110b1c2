package worker

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/dispatcher"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

// INIT is included for calls whose process died before recording an outcome.
var incompleteStatuses = []domain.TransactionStatus{
	domain.TransactionStatusInit,
	domain.TransactionStatusPending,
	domain.TransactionStatusUnknown,
}

func (j *Janitor) reconcileIncompleteTransactions(ctx context.Context) {
	cutoff := j.now().Add(-j.cfg.PendingTimeout)
	txns, err := j.dao.GetTransactionsByStatus(ctx, incompleteStatuses, cutoff, j.cfg.BatchSize)
	if err != nil {
		j.logger.Error("failed to fetch incomplete transactions", "error", err)
		return
	}

	if len(txns) == 0 {
		return
	}

	j.logger.Info("reconciling incomplete transactions", "count", len(txns))

	for _, txn := range txns {
		if ctx.Err() != nil {
			return
		}
		if err := j.reconcileTransaction(ctx, txn); err != nil {
			j.logger.Error("reconciliation failed for transaction",
				"transaction_id", txn.ID,
				"payment_id", txn.PaymentID,
				"status", txn.Status,
				"category", domain.Categorize(err),
				"error", err)
		}
	}
}

// reconcileTransaction asks the plugin about txn under the account lock and
// settles it when the answer is definitive. A PENDING transaction still
// pending past the timeout is settled as a plugin failure.
func (j *Janitor) reconcileTransaction(ctx context.Context, txn *domain.PaymentTransaction) error {
	payment, err := j.dao.GetPayment(ctx, txn.PaymentID)
	if err != nil {
		return err
	}
	account, err := j.accounts.GetAccount(ctx, payment.AccountID)
	if err != nil {
		return err
	}

	_, err = dispatcher.DispatchWithAccountLock(j.dispatcher, ctx, account.ExternalKey, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, j.settle(ctx, payment, txn)
	})
	return err
}

func (j *Janitor) settle(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction) error {
	pluginName, plugin, err := j.transactions.PaymentPlugin(ctx, payment.PaymentMethodID, true)
	if err != nil {
		return err
	}

	infos, err := plugin.GetPaymentInfo(ctx, domain.PluginRequest{
		AccountID:       payment.AccountID,
		PaymentID:       payment.ID,
		TransactionID:   txn.ID,
		PaymentMethodID: payment.PaymentMethodID,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
	})
	if err != nil {
		return domain.NewPluginExceptionError(pluginName, txn.TransactionType, err)
	}

	info := matchingInfo(infos, txn)
	switch {
	case info != nil && isDefinitive(info.Status):
	case info != nil && info.Status == domain.PluginStatusPending && txn.Status != domain.TransactionStatusPending:
	case txn.Status == domain.TransactionStatusPending:
		j.logger.Warn("pending transaction timed out",
			"transaction_id", txn.ID,
			"payment_id", payment.ID,
			"created_at", txn.CreatedAt)
		info = nil
	default:
		j.logger.Info("transaction outcome still unknown",
			"transaction_id", txn.ID,
			"payment_id", payment.ID)
		return nil
	}

	settled, err := j.transactions.CompleteFromPlugin(ctx, txn, info)
	if err != nil {
		return err
	}
	j.logger.Info("successfully reconciled transaction",
		"transaction_id", txn.ID,
		"payment_id", settled.ID,
		"state", settled.StateName)
	return nil
}

func matchingInfo(infos []*domain.PluginTransactionInfo, txn *domain.PaymentTransaction) *domain.PluginTransactionInfo {
	for _, info := range infos {
		if info != nil && info.TransactionID == txn.ID {
			return info
		}
	}
	return nil
}

func isDefinitive(s domain.PluginStatus) bool {
	return s == domain.PluginStatusProcessed || s == domain.PluginStatusError
}
