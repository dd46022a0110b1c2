package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTransactionStatusFromPlugin(t *testing.T) {
	t.Run("maps every plugin status", func(t *testing.T) {
		cases := map[domain.PluginStatus]domain.TransactionStatus{
			domain.PluginStatusProcessed: domain.TransactionStatusSuccess,
			domain.PluginStatusPending:   domain.TransactionStatusPending,
			domain.PluginStatusError:     domain.TransactionStatusPaymentFailure,
			domain.PluginStatusUndefined: domain.TransactionStatusPluginFailure,
		}
		for pluginStatus, expected := range cases {
			info := &domain.PluginTransactionInfo{Status: pluginStatus}
			assert.Equal(t, expected, domain.TransactionStatusFromPlugin(info), pluginStatus)
		}
	})

	t.Run("nil info is a plugin failure", func(t *testing.T) {
		assert.Equal(t, domain.TransactionStatusPluginFailure, domain.TransactionStatusFromPlugin(nil))
	})

	t.Run("unrecognised statuses never map to success", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			status := rapid.StringMatching(`[A-Z_]{1,12}`).Draw(t, "status")
			if status == string(domain.PluginStatusProcessed) || status == string(domain.PluginStatusPending) {
				return
			}
			got := domain.TransactionStatusFromPlugin(&domain.PluginTransactionInfo{Status: domain.PluginStatus(status)})
			if !got.IsFailure() {
				t.Fatalf("status %q mapped to %s", status, got)
			}
		})
	})
}

func TestTransactionStatus_IsUnsettled(t *testing.T) {
	assert.True(t, domain.TransactionStatusInit.IsUnsettled())
	assert.True(t, domain.TransactionStatusUnknown.IsUnsettled())
	assert.False(t, domain.TransactionStatusPending.IsUnsettled())
	assert.False(t, domain.TransactionStatusSuccess.IsUnsettled())
	assert.False(t, domain.TransactionStatusPluginFailure.IsUnsettled())
}

func TestPayment_Currency(t *testing.T) {
	t.Run("ignores chargebacks in a different currency", func(t *testing.T) {
		p := &domain.Payment{Transactions: []*domain.PaymentTransaction{
			{TransactionType: domain.TransactionTypeChargeback, Currency: "EUR"},
			{TransactionType: domain.TransactionTypePurchase, Currency: "USD"},
		}}
		assert.Equal(t, domain.Currency("USD"), p.Currency())
	})

	t.Run("empty payment has no currency", func(t *testing.T) {
		assert.Equal(t, domain.Currency(""), (&domain.Payment{}).Currency())
	})
}

func TestPayment_TransactionLookup(t *testing.T) {
	first := &domain.PaymentTransaction{ID: uuid.New(), Amount: decimal.NewFromInt(10)}
	last := &domain.PaymentTransaction{ID: uuid.New(), Amount: decimal.NewFromInt(20)}
	p := &domain.Payment{Transactions: []*domain.PaymentTransaction{first, last}}

	assert.Same(t, first, p.Transaction(first.ID))
	assert.Nil(t, p.Transaction(uuid.New()))
	assert.Same(t, last, p.LastTransaction())
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, domain.CategoryTimeout, domain.Categorize(domain.NewPluginTimeoutError(0)))
	assert.Equal(t, domain.CategoryPlugin, domain.Categorize(domain.NewPluginExceptionError("p", domain.TransactionTypeRefund, errors.New("boom"))))
	assert.Equal(t, domain.CategoryValidation, domain.Categorize(domain.NewInvalidCurrencyError(uuid.New(), "USD", "EUR")))
	assert.Equal(t, domain.CategoryInternal, domain.Categorize(domain.NewInternalError("x", nil)))
	assert.Equal(t, domain.CategoryTimeout, domain.Categorize(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, domain.CategoryInfrastructure, domain.Categorize(errors.New("connection reset")))
	assert.Equal(t, domain.ErrorCategory(""), domain.Categorize(nil))
}

func TestIsBusinessError(t *testing.T) {
	business := domain.NewInvalidCurrencyError(uuid.New(), "USD", "EUR")

	assert.True(t, domain.IsBusinessError(business))
	assert.True(t, domain.IsBusinessError(fmt.Errorf("leaving: %w", business)))
	assert.False(t, domain.IsBusinessError(domain.NewInternalError("wrapped", business)))
	assert.False(t, domain.IsBusinessError(errors.New("plain")))
	assert.True(t, domain.IsErrorCode(business, domain.ErrCodeInvalidCurrency))
}
