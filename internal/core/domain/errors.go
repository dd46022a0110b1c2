package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainError represents a business logic error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Validation errors
const (
	ErrCodeInvalidRequest              = "INVALID_REQUEST"
	ErrCodeInvalidCurrency             = "INVALID_CURRENCY"
	ErrCodeMissingDefaultPaymentMethod = "MISSING_DEFAULT_PAYMENT_METHOD"
	ErrCodeInvalidPaymentMethod        = "INVALID_PAYMENT_METHOD"
	ErrCodeUnknownPlugin               = "UNKNOWN_PLUGIN"
	ErrCodePaymentNotFound             = "PAYMENT_NOT_FOUND"
	ErrCodeAccountNotFound             = "ACCOUNT_NOT_FOUND"
	ErrCodeAttemptNotFound             = "ATTEMPT_NOT_FOUND"
	ErrCodeInvalidOperation            = "INVALID_OPERATION"
	ErrCodeTransactionKeyExists        = "TRANSACTION_KEY_EXISTS"
)

// Plugin and control errors
const (
	ErrCodePluginException        = "PLUGIN_EXCEPTION"
	ErrCodePluginTimeout          = "PLUGIN_TIMEOUT"
	ErrCodePaymentAborted         = "PAYMENT_ABORTED"
	ErrCodeControlPluginException = "CONTROL_PLUGIN_EXCEPTION"
)

const ErrCodeInternal = "INTERNAL_ERROR"

func NewInvalidRequestError(err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRequest,
		Message: "invalid payment request",
		Err:     err,
	}
}

func NewInvalidCurrencyError(paymentID uuid.UUID, expected, actual Currency) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidCurrency,
		Message: fmt.Sprintf("payment %s is in %s, transaction requested in %s", paymentID, expected, actual),
	}
}

func NewMissingDefaultPaymentMethodError(accountID uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingDefaultPaymentMethod,
		Message: fmt.Sprintf("account %s has no default payment method", accountID),
	}
}

func NewInvalidPaymentMethodError(paymentID uuid.UUID, expected, actual uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidPaymentMethod,
		Message: fmt.Sprintf("payment %s uses payment method %s, got %s", paymentID, expected, actual),
	}
}

func NewPaymentMethodNotFoundError(id uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidPaymentMethod,
		Message: fmt.Sprintf("payment method %s not found", id),
	}
}

func NewUnknownPluginError(name string) *DomainError {
	return &DomainError{
		Code:    ErrCodeUnknownPlugin,
		Message: fmt.Sprintf("no plugin registered under %q", name),
	}
}

func NewPaymentNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentNotFound,
		Message: fmt.Sprintf("payment %s not found", id),
	}
}

func NewAccountNotFoundError(id uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeAccountNotFound,
		Message: fmt.Sprintf("account %s not found", id),
	}
}

func NewAttemptNotFoundError(id uuid.UUID) *DomainError {
	return &DomainError{
		Code:    ErrCodeAttemptNotFound,
		Message: fmt.Sprintf("payment attempt %s not found", id),
	}
}

func NewInvalidOperationError(txType TransactionType, stateName string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidOperation,
		Message: fmt.Sprintf("%s is not allowed from state %s", txType, stateName),
	}
}

func NewTransactionKeyExistsError(key string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTransactionKeyExists,
		Message: fmt.Sprintf("transaction external key %s is already used by an active transaction", key),
	}
}

func NewPluginExceptionError(pluginName string, txType TransactionType, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodePluginException,
		Message: fmt.Sprintf("plugin %s failed %s", pluginName, txType),
		Err:     err,
	}
}

func NewPluginTimeoutError(timeout time.Duration) *DomainError {
	return &DomainError{
		Code:    ErrCodePluginTimeout,
		Message: fmt.Sprintf("plugin call did not complete within %s", timeout),
		Err:     context.DeadlineExceeded,
	}
}

func NewPaymentAbortedError(txExternalKey string) *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentAborted,
		Message: fmt.Sprintf("payment transaction %s aborted by control plugin", txExternalKey),
	}
}

func NewControlPluginExceptionError(pluginName string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeControlPluginException,
		Message: fmt.Sprintf("control plugin %s failed", pluginName),
		Err:     err,
	}
}

func NewInternalError(message string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// IsErrorCode checks whether err carries a DomainError with the given code.
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsBusinessError reports whether the outermost DomainError in the chain is
// something other than an internal error.
func IsBusinessError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code != ErrCodeInternal
}

// ErrorCategory groups errors for logging and retry decisions.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "VALIDATION"
	CategoryPlugin         ErrorCategory = "PLUGIN"
	CategoryTimeout        ErrorCategory = "TIMEOUT"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
	CategoryInternal       ErrorCategory = "INTERNAL"
)

// Categorize determines error category for retry and logging purposes
func Categorize(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case ErrCodePluginTimeout:
			return CategoryTimeout
		case ErrCodePluginException, ErrCodeControlPluginException, ErrCodePaymentAborted:
			return CategoryPlugin
		case ErrCodeInternal:
			return CategoryInternal
		default:
			return CategoryValidation
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	return CategoryInfrastructure
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	switch Categorize(err) {
	case CategoryTimeout, CategoryInfrastructure, CategoryInternal:
		return true
	default:
		return false
	}
}
