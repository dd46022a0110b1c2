package plugin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

type PluginError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

type ErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func (e *PluginError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("plugin error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("plugin error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// IsDecline reports whether the processor answered and refused the
// transaction, as opposed to failing to answer.
func (e *PluginError) IsDecline() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout &&
		e.StatusCode != http.StatusTooManyRequests
}

func IsPluginError(err error) (*PluginError, bool) {
	var pluginErr *PluginError
	ok := errors.As(err, &pluginErr)
	return pluginErr, ok
}

// asDecline turns a processor refusal into an ERROR transaction.
func asDecline(err error, req domain.PluginRequest, tt domain.TransactionType) (*domain.PluginTransactionInfo, bool) {
	pluginErr, ok := IsPluginError(err)
	if !ok || !pluginErr.IsDecline() {
		return nil, false
	}
	return &domain.PluginTransactionInfo{
		PaymentID:           req.PaymentID,
		TransactionID:       req.TransactionID,
		TransactionType:     tt,
		Status:              domain.PluginStatusError,
		Amount:              req.Amount,
		Currency:            req.Currency,
		GatewayErrorCode:    pluginErr.Code,
		GatewayErrorMessage: pluginErr.Message,
	}, true
}
