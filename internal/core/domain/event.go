package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names what happened.
type EventType string

const (
	EventPaymentInfo        EventType = "PAYMENT_INFO"
	EventPaymentError       EventType = "PAYMENT_ERROR"
	EventPaymentPluginError EventType = "PAYMENT_PLUGIN_ERROR"
)

// Event is published on the bus after bookkeeping, best effort.
type Event struct {
	Type            EventType
	AccountID       uuid.UUID
	PaymentID       *uuid.UUID
	TransactionID   *uuid.UUID
	TransactionType TransactionType
	Status          TransactionStatus
	Amount          decimal.Decimal
	Currency        Currency
	Message         string
	OccurredAt      time.Time
}
