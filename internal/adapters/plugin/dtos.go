package plugin

import (
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type transactionRequest struct {
	AccountID       uuid.UUID       `json:"account_id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	PaymentMethodID uuid.UUID       `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Properties      map[string]any  `json:"properties,omitempty"`
}

func newTransactionRequest(req domain.PluginRequest) transactionRequest {
	out := transactionRequest{
		AccountID:       req.AccountID,
		PaymentID:       req.PaymentID,
		TransactionID:   req.TransactionID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          req.Amount,
		Currency:        string(req.Currency),
	}
	if len(req.Properties) > 0 {
		out.Properties = make(map[string]any, len(req.Properties))
		for _, p := range req.Properties {
			out.Properties[p.Key] = p.Value
		}
	}
	return out
}

type transactionResponse struct {
	TransactionID   uuid.UUID              `json:"transaction_id"`
	TransactionType domain.TransactionType `json:"transaction_type"`
	Status          string                 `json:"status"`
	Amount          decimal.Decimal        `json:"amount"`
	Currency        string                 `json:"currency"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

type paymentInfoResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

func (r transactionResponse) toInfo(paymentID uuid.UUID, tt domain.TransactionType) *domain.PluginTransactionInfo {
	if tt == "" {
		tt = r.TransactionType
	}
	return &domain.PluginTransactionInfo{
		PaymentID:           paymentID,
		TransactionID:       r.TransactionID,
		TransactionType:     tt,
		Status:              pluginStatus(r.Status),
		Amount:              r.Amount,
		Currency:            domain.Currency(r.Currency),
		GatewayErrorCode:    r.ErrorCode,
		GatewayErrorMessage: r.ErrorMessage,
		EffectiveDate:       r.CreatedAt,
	}
}

// pluginStatus maps processor status words onto plugin statuses. Anything
// unrecognised is UNDEFINED.
func pluginStatus(s string) domain.PluginStatus {
	switch s {
	case "PROCESSED", "APPROVED", "CAPTURED", "AUTHORIZED", "VOIDED", "REFUNDED":
		return domain.PluginStatusProcessed
	case "PENDING":
		return domain.PluginStatusPending
	case "ERROR", "DECLINED", "FAILED":
		return domain.PluginStatusError
	default:
		return domain.PluginStatusUndefined
	}
}
