package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PluginStatus is the outcome reported by a payment plugin.
type PluginStatus string

const (
	PluginStatusProcessed PluginStatus = "PROCESSED"
	PluginStatusPending   PluginStatus = "PENDING"
	PluginStatusError     PluginStatus = "ERROR"
	PluginStatusUndefined PluginStatus = "UNDEFINED"
)

// PluginRequest is passed to every payment plugin operation.
type PluginRequest struct {
	AccountID       uuid.UUID        `json:"account_id"`
	PaymentID       uuid.UUID        `json:"payment_id"`
	TransactionID   uuid.UUID        `json:"transaction_id"`
	PaymentMethodID uuid.UUID        `json:"payment_method_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        Currency         `json:"currency"`
	Properties      []PluginProperty `json:"properties,omitempty"`
}

// PluginTransactionInfo is the plugin's view of a transaction.
type PluginTransactionInfo struct {
	PaymentID           uuid.UUID       `json:"payment_id"`
	TransactionID       uuid.UUID       `json:"transaction_id"`
	TransactionType     TransactionType `json:"transaction_type"`
	Status              PluginStatus    `json:"status"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            Currency        `json:"currency"`
	GatewayErrorCode    string          `json:"gateway_error_code,omitempty"`
	GatewayErrorMessage string          `json:"gateway_error_message,omitempty"`
	EffectiveDate       time.Time       `json:"effective_date"`
}

// TransactionStatusFromPlugin maps the plugin view onto bookkeeping status.
// A nil info means the plugin returned nothing useful.
func TransactionStatusFromPlugin(info *PluginTransactionInfo) TransactionStatus {
	if info == nil {
		return TransactionStatusPluginFailure
	}
	switch info.Status {
	case PluginStatusProcessed:
		return TransactionStatusSuccess
	case PluginStatusPending:
		return TransactionStatusPending
	case PluginStatusError:
		return TransactionStatusPaymentFailure
	default:
		return TransactionStatusPluginFailure
	}
}

// ControlContext is what control plugins see on every hook.
type ControlContext struct {
	AttemptID              uuid.UUID
	AccountID              uuid.UUID
	PaymentMethodID        *uuid.UUID
	PaymentID              *uuid.UUID
	PaymentExternalKey     string
	TransactionID          *uuid.UUID
	TransactionExternalKey string
	TransactionType        TransactionType
	Amount                 decimal.Decimal
	Currency               Currency
	ProcessedAmount        decimal.Decimal
	ProcessedCurrency      Currency
	Properties             []PluginProperty
	IsAPIPayment           bool
	// RetryCount is the number of failed transactions already recorded under
	// TransactionExternalKey.
	RetryCount int
	// Err is the failure being reported to OnFailureCall, if any.
	Err error
}

// PriorCallResult lets a control plugin abort the call or adjust its inputs.
type PriorCallResult struct {
	Aborted                 bool
	AdjustedAmount          *decimal.Decimal
	AdjustedCurrency        Currency
	AdjustedPaymentMethodID *uuid.UUID
	AdjustedProperties      []PluginProperty
}

// OnFailureResult carries the control plugin's retry decision.
type OnFailureResult struct {
	NextRetryDate *time.Time
}
