package automaton

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
)

type pluginCall func(p ports.PaymentPlugin, ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)

// transactionCallbacks is what differs between transaction types. Leaving and
// entering are shared; the operation is the plugin method.
type transactionCallbacks struct {
	call pluginCall
	// opening types may start a payment.
	opening bool
	// allowDeletedPaymentMethod lets follow-up operations target a payment
	// method that has since been removed from the account.
	allowDeletedPaymentMethod bool
}

var callbackRegistry = map[domain.TransactionType]transactionCallbacks{
	domain.TransactionTypeAuthorize:  {call: ports.PaymentPlugin.AuthorizePayment, opening: true},
	domain.TransactionTypeCapture:    {call: ports.PaymentPlugin.CapturePayment},
	domain.TransactionTypePurchase:   {call: ports.PaymentPlugin.PurchasePayment, opening: true},
	domain.TransactionTypeVoid:       {call: ports.PaymentPlugin.VoidPayment, allowDeletedPaymentMethod: true},
	domain.TransactionTypeRefund:     {call: ports.PaymentPlugin.RefundPayment, allowDeletedPaymentMethod: true},
	domain.TransactionTypeCredit:     {call: ports.PaymentPlugin.CreditPayment, opening: true},
	domain.TransactionTypeChargeback: {call: ports.PaymentPlugin.ChargebackPayment, allowDeletedPaymentMethod: true},
}

// IsOpening reports whether t may create a new payment.
func IsOpening(t domain.TransactionType) bool {
	return callbackRegistry[t].opening
}

func (r *Runner) callbacks(sc *StateContext, tc transactionCallbacks) statemachine.Callbacks {
	return statemachine.Callbacks{
		Leaving:   r.leavingState(sc),
		Operation: r.operation(sc, tc.call),
		Entering:  r.enteringState(sc),
	}
}
