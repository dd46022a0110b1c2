package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	paymentColumns = `id, account_id, payment_method_id, external_key, state_name, last_success_state_name,
				created_at, updated_at`

	transactionColumns = `id, payment_id, attempt_id, transaction_external_key, transaction_type, status,
				amount, currency, processed_amount, processed_currency, gateway_error_code, gateway_error_msg,
				effective_date, created_at, updated_at`

	attemptColumns = `id, account_id, payment_method_id, payment_external_key, transaction_id,
				transaction_external_key, transaction_type, state_name, amount, currency, plugin_name, properties,
				created_at, updated_at`
)

type PaymentDao struct {
	db *DB
	q  Executor
}

var _ ports.PaymentDao = (*PaymentDao)(nil)

func NewPaymentDao(db *DB) *PaymentDao {
	return &PaymentDao{
		db: db,
		q:  db.Pool,
	}
}

func (r *PaymentDao) InsertPaymentWithFirstTransaction(ctx context.Context, p *domain.Payment, txn *domain.PaymentTransaction) (*domain.Payment, error) {
	err := r.WithTx(ctx, func(tx *PaymentDao) error {
		query := `INSERT INTO payments (` + paymentColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		_, err := tx.q.Exec(ctx, query,
			p.ID,
			p.AccountID,
			p.PaymentMethodID,
			p.ExternalKey,
			p.StateName,
			p.LastSuccessStateName,
			p.CreatedAt,
			p.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err, "payments_external_key_key") {
				return domain.NewInternalError("payment external key "+p.ExternalKey+" already exists", err)
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}

		t := *txn
		t.PaymentID = p.ID
		return tx.insertTransaction(ctx, &t)
	})
	if err != nil {
		return nil, err
	}
	return r.GetPayment(ctx, p.ID)
}

func (r *PaymentDao) UpdatePaymentWithNewTransaction(ctx context.Context, paymentID uuid.UUID, txn *domain.PaymentTransaction) (*domain.PaymentTransaction, error) {
	t := *txn
	t.PaymentID = paymentID

	err := r.WithTx(ctx, func(tx *PaymentDao) error {
		cmdTag, err := tx.q.Exec(ctx, `UPDATE payments SET updated_at = $1 WHERE id = $2`, t.CreatedAt, paymentID)
		if err != nil {
			return fmt.Errorf("failed to touch payment: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return domain.NewPaymentNotFoundError(paymentID.String())
		}
		return tx.insertTransaction(ctx, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdatePaymentAndTransactionOnCompletion moves the payment to its new state
// and records the transaction outcome. A SUCCESS transaction keeps its status.
func (r *PaymentDao) UpdatePaymentAndTransactionOnCompletion(ctx context.Context, c domain.TransactionCompletion) error {
	return r.WithTx(ctx, func(tx *PaymentDao) error {
		cmdTag, err := tx.q.Exec(ctx, `
			UPDATE payments SET state_name = $1,
				last_success_state_name = COALESCE(NULLIF($2, ''), last_success_state_name),
				updated_at = NOW()
			WHERE id = $3`,
			c.StateName,
			c.LastSuccessStateName,
			c.PaymentID,
		)
		if err != nil {
			return fmt.Errorf("failed to update payment state: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return domain.NewPaymentNotFoundError(c.PaymentID.String())
		}

		var current domain.TransactionStatus
		err = tx.q.QueryRow(ctx,
			`SELECT status FROM payment_transactions WHERE id = $1 AND payment_id = $2 FOR UPDATE`,
			c.TransactionID, c.PaymentID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NewInternalError("transaction "+c.TransactionID.String()+" not found", nil)
			}
			return fmt.Errorf("failed to lock transaction: %w", err)
		}
		if current == domain.TransactionStatusSuccess && c.Status != domain.TransactionStatusSuccess {
			return nil
		}

		_, err = tx.q.Exec(ctx, `
			UPDATE payment_transactions SET status = $1, processed_amount = $2, processed_currency = $3,
				gateway_error_code = $4, gateway_error_msg = $5, updated_at = NOW()
			WHERE id = $6`,
			c.Status,
			c.ProcessedAmount,
			c.ProcessedCurrency,
			c.GatewayErrorCode,
			c.GatewayErrorMsg,
			c.TransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		return nil
	})
}

func (r *PaymentDao) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewPaymentNotFoundError(id.String())
		}
		return nil, err
	}
	return r.withTransactions(ctx, p)
}

// GetPaymentByExternalKey returns nil when no payment carries the key.
func (r *PaymentDao) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*domain.Payment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_key = $1`, externalKey)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r.withTransactions(ctx, p)
}

func (r *PaymentDao) GetTransactionsByExternalKey(ctx context.Context, transactionExternalKey string) ([]*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + `
			FROM payment_transactions
			WHERE transaction_external_key = $1
			ORDER BY created_at, id`
	return r.queryTransactions(ctx, query, transactionExternalKey)
}

func (r *PaymentDao) GetTransactionsByStatus(ctx context.Context, statuses []domain.TransactionStatus, createdBefore time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + transactionColumns + `
			FROM payment_transactions
			WHERE status = ANY($1) AND created_at < $2
			ORDER BY created_at
			LIMIT $3`
	return r.queryTransactions(ctx, query, names, createdBefore, limit)
}

func (r *PaymentDao) GetPaymentMethod(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := r.q.QueryRow(ctx, `
			SELECT id, account_id, plugin_name, is_active
			FROM payment_methods
			WHERE id = $1 AND (is_active OR $2)`,
		id, includeDeleted,
	).Scan(&pm.ID, &pm.AccountID, &pm.PluginName, &pm.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewPaymentMethodNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan payment method: %w", err)
	}
	return &pm, nil
}

// InsertPaymentMethod registers a payment method for an existing account.
func (r *PaymentDao) InsertPaymentMethod(ctx context.Context, pm domain.PaymentMethod) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO payment_methods (id, account_id, plugin_name, is_active) VALUES ($1, $2, $3, $4)`,
		pm.ID, pm.AccountID, pm.PluginName, pm.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment method: %w", err)
	}
	return nil
}

func (r *PaymentDao) InsertAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	query := `INSERT INTO payment_attempts (` + attemptColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		a.ID,
		a.AccountID,
		a.PaymentMethodID,
		a.PaymentExternalKey,
		a.TransactionID,
		a.TransactionExternalKey,
		a.TransactionType,
		a.StateName,
		a.Amount,
		a.Currency,
		a.PluginName,
		a.Properties,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

func (r *PaymentDao) UpdateAttempt(ctx context.Context, attemptID uuid.UUID, transactionID *uuid.UUID, stateName string) error {
	cmdTag, err := r.q.Exec(ctx, `
			UPDATE payment_attempts SET state_name = $1,
				transaction_id = COALESCE($2, transaction_id),
				updated_at = NOW()
			WHERE id = $3`,
		stateName, transactionID, attemptID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment attempt: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewAttemptNotFoundError(attemptID)
	}
	return nil
}

func (r *PaymentDao) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	row := r.q.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewAttemptNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
	}
	return a, nil
}

func (r *PaymentDao) GetAttemptsByState(ctx context.Context, stateName string, createdBefore time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	rows, err := r.q.Query(ctx, `
			SELECT `+attemptColumns+`
			FROM payment_attempts
			WHERE state_name = $1 AND created_at < $2
			ORDER BY created_at
			LIMIT $3`,
		stateName, createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query payment attempts: %w", err)
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentAttempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment attempts: %w", err)
	}
	return attempts, nil
}

// WithTx runs fn against a DAO bound to one transaction. Nested calls join
// the outer transaction.
func (r *PaymentDao) WithTx(ctx context.Context, fn func(*PaymentDao) error) error {
	if _, inTx := r.q.(pgx.Tx); inTx {
		return fn(r)
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&PaymentDao{db: r.db, q: tx})
	})
}

func (r *PaymentDao) insertTransaction(ctx context.Context, t *domain.PaymentTransaction) error {
	query := `INSERT INTO payment_transactions (` + transactionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		t.ID,
		t.PaymentID,
		t.AttemptID,
		t.TransactionExternalKey,
		t.TransactionType,
		t.Status,
		t.Amount,
		t.Currency,
		t.ProcessedAmount,
		t.ProcessedCurrency,
		t.GatewayErrorCode,
		t.GatewayErrorMsg,
		t.EffectiveDate,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *PaymentDao) withTransactions(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	txns, err := r.queryTransactions(ctx, `
			SELECT `+transactionColumns+`
			FROM payment_transactions
			WHERE payment_id = $1
			ORDER BY created_at, id`, p.ID)
	if err != nil {
		return nil, err
	}
	p.Transactions = txns
	return p, nil
}

func (r *PaymentDao) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.PaymentTransaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payment transactions: %w", err)
	}
	txns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentTransaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error occurred while scanning rows: %w", err)
	}
	return txns, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.PaymentMethodID,
		&p.ExternalKey,
		&p.StateName,
		&p.LastSuccessStateName,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}

func scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	var t domain.PaymentTransaction
	err := row.Scan(
		&t.ID,
		&t.PaymentID,
		&t.AttemptID,
		&t.TransactionExternalKey,
		&t.TransactionType,
		&t.Status,
		&t.Amount,
		&t.Currency,
		&t.ProcessedAmount,
		&t.ProcessedCurrency,
		&t.GatewayErrorCode,
		&t.GatewayErrorMsg,
		&t.EffectiveDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return &t, err
}

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	err := row.Scan(
		&a.ID,
		&a.AccountID,
		&a.PaymentMethodID,
		&a.PaymentExternalKey,
		&a.TransactionID,
		&a.TransactionExternalKey,
		&a.TransactionType,
		&a.StateName,
		&a.Amount,
		&a.Currency,
		&a.PluginName,
		&a.Properties,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return &a, err
}
