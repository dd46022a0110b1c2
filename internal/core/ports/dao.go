package ports

import (
	"context"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
)

// PaymentDao is the persistence collaborator. Every write must be atomic from
// the caller's point of view.
type PaymentDao interface {
	// InsertPaymentWithFirstTransaction creates the payment and its first
	// transaction together.
	InsertPaymentWithFirstTransaction(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction) (*domain.Payment, error)
	UpdatePaymentWithNewTransaction(ctx context.Context, paymentID uuid.UUID, txn *domain.PaymentTransaction) (*domain.PaymentTransaction, error)
	// UpdatePaymentAndTransactionOnCompletion never rewrites a SUCCESS
	// transaction to another status.
	UpdatePaymentAndTransactionOnCompletion(ctx context.Context, c domain.TransactionCompletion) error

	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentByExternalKey(ctx context.Context, externalKey string) (*domain.Payment, error)
	GetTransactionsByExternalKey(ctx context.Context, transactionExternalKey string) ([]*domain.PaymentTransaction, error)
	GetTransactionsByStatus(ctx context.Context, statuses []domain.TransactionStatus, createdBefore time.Time, limit int) ([]*domain.PaymentTransaction, error)

	GetPaymentMethod(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.PaymentMethod, error)

	InsertAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	UpdateAttempt(ctx context.Context, attemptID uuid.UUID, transactionID *uuid.UUID, stateName string) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	GetAttemptsByState(ctx context.Context, stateName string, createdBefore time.Time, limit int) ([]*domain.PaymentAttempt, error)
}

// AccountAPI resolves accounts owned by the surrounding billing system.
type AccountAPI interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}
