package ports

import (
	"context"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

// PaymentPlugin is the external processor integration. A returned error is a
// plugin business failure; a nil info is treated as an undefined outcome.
type PaymentPlugin interface {
	AuthorizePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	CapturePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	PurchasePayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	VoidPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	RefundPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	CreditPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)
	ChargebackPayment(ctx context.Context, req domain.PluginRequest) (*domain.PluginTransactionInfo, error)

	// GetPaymentInfo returns what the processor knows about every transaction
	// of a payment. Used by the janitor.
	GetPaymentInfo(ctx context.Context, req domain.PluginRequest) ([]*domain.PluginTransactionInfo, error)
}

// ControlPlugin is consulted around every control-layer call.
type ControlPlugin interface {
	PriorCall(ctx context.Context, cc domain.ControlContext) (*domain.PriorCallResult, error)
	OnSuccessCall(ctx context.Context, cc domain.ControlContext) error
	OnFailureCall(ctx context.Context, cc domain.ControlContext) (*domain.OnFailureResult, error)
}

// PluginRegistry looks payment plugins up by name.
type PluginRegistry interface {
	GetPlugin(name string) (PaymentPlugin, bool)
}

// ControlPluginRegistry looks control plugins up by name.
type ControlPluginRegistry interface {
	GetControlPlugin(name string) (ControlPlugin, bool)
}
