package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentAttempt records one control-layer invocation, including its retries.
type PaymentAttempt struct {
	ID                     uuid.UUID
	AccountID              uuid.UUID
	PaymentMethodID        *uuid.UUID
	PaymentExternalKey     string
	TransactionID          *uuid.UUID
	TransactionExternalKey string
	TransactionType        TransactionType
	StateName              string
	Amount                 decimal.Decimal
	Currency               Currency
	PluginName             string
	Properties             []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ControlPluginNames splits the stored plugin list.
func (a *PaymentAttempt) ControlPluginNames() []string {
	if a.PluginName == "" {
		return nil
	}
	return strings.Split(a.PluginName, ",")
}

// JoinPluginNames is the inverse of ControlPluginNames.
func JoinPluginNames(names []string) string {
	return strings.Join(names, ",")
}

// RetryNotification is the durable payload re-entering the control runner.
type RetryNotification struct {
	ID                     uuid.UUID
	AttemptID              uuid.UUID
	PaymentID              *uuid.UUID
	TransactionExternalKey string
	PluginName             string
	EffectiveDate          time.Time
}
