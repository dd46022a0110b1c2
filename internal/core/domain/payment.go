// Package domain defines the payment aggregates driven by the automaton.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code.
type Currency string

// TransactionType is the kind of monetary operation attempted against a payment.
type TransactionType string

const (
	TransactionTypeAuthorize  TransactionType = "AUTHORIZE"
	TransactionTypeCapture    TransactionType = "CAPTURE"
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeVoid       TransactionType = "VOID"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeCredit     TransactionType = "CREDIT"
	TransactionTypeChargeback TransactionType = "CHARGEBACK"
)

// TransactionTypes lists every supported type in declaration order.
var TransactionTypes = []TransactionType{
	TransactionTypeAuthorize,
	TransactionTypeCapture,
	TransactionTypePurchase,
	TransactionTypeVoid,
	TransactionTypeRefund,
	TransactionTypeCredit,
	TransactionTypeChargeback,
}

// TransactionStatus is the bookkeeping status of a single transaction.
type TransactionStatus string

const (
	TransactionStatusInit           TransactionStatus = "INIT"
	TransactionStatusPending        TransactionStatus = "PENDING"
	TransactionStatusSuccess        TransactionStatus = "SUCCESS"
	TransactionStatusPaymentFailure TransactionStatus = "PAYMENT_FAILURE"
	TransactionStatusPluginFailure  TransactionStatus = "PLUGIN_FAILURE"
	TransactionStatusUnknown        TransactionStatus = "UNKNOWN"
)

// IsFailure reports whether the status is a definitive failure.
func (s TransactionStatus) IsFailure() bool {
	return s == TransactionStatusPaymentFailure || s == TransactionStatusPluginFailure
}

// IsUnsettled reports whether the plugin's answer was never recorded, either
// because the call is still running or because it was lost.
func (s TransactionStatus) IsUnsettled() bool {
	return s == TransactionStatusInit || s == TransactionStatusUnknown
}

// Account is the subset of the billing account the automaton needs.
type Account struct {
	ID                     uuid.UUID
	ExternalKey            string
	Currency               Currency
	DefaultPaymentMethodID *uuid.UUID
}

// PaymentMethod binds an account to the plugin that processes its payments.
type PaymentMethod struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	PluginName string
	IsActive   bool
}

// PluginProperty is an opaque key/value pair forwarded to plugins.
type PluginProperty struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Payment is the aggregate root for every transaction sharing one external key.
type Payment struct {
	ID                   uuid.UUID
	AccountID            uuid.UUID
	PaymentMethodID      uuid.UUID
	ExternalKey          string
	StateName            string
	LastSuccessStateName string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Transactions are ordered by creation.
	Transactions []*PaymentTransaction
}

// Currency returns the currency shared by the non-chargeback transactions.
func (p *Payment) Currency() Currency {
	for _, t := range p.Transactions {
		if t.TransactionType != TransactionTypeChargeback {
			return t.Currency
		}
	}
	if len(p.Transactions) > 0 {
		return p.Transactions[0].Currency
	}
	return ""
}

// Transaction returns the transaction with the given id, or nil.
func (p *Payment) Transaction(id uuid.UUID) *PaymentTransaction {
	for _, t := range p.Transactions {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// LastTransaction returns the most recent transaction, or nil.
func (p *Payment) LastTransaction() *PaymentTransaction {
	if len(p.Transactions) == 0 {
		return nil
	}
	return p.Transactions[len(p.Transactions)-1]
}

// PaymentTransaction is one attempted monetary operation against a Payment.
type PaymentTransaction struct {
	ID                     uuid.UUID
	PaymentID              uuid.UUID
	AttemptID              *uuid.UUID
	TransactionExternalKey string
	TransactionType        TransactionType
	Status                 TransactionStatus

	Amount            decimal.Decimal
	Currency          Currency
	ProcessedAmount   decimal.Decimal
	ProcessedCurrency Currency

	GatewayErrorCode string
	GatewayErrorMsg  string

	EffectiveDate time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransactionCompletion carries everything the entering callback persists once
// the outcome of an attempt is known.
type TransactionCompletion struct {
	PaymentID            uuid.UUID
	StateName            string
	LastSuccessStateName string
	TransactionID        uuid.UUID
	Status               TransactionStatus
	ProcessedAmount      decimal.Decimal
	ProcessedCurrency    Currency
	GatewayErrorCode     string
	GatewayErrorMsg      string
}
