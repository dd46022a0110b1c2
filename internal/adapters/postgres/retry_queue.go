package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RetryQueue stores retry notifications in retry_notifications. Claimed rows
// become claimable again once visibility has passed without a Complete.
type RetryQueue struct {
	q          Executor
	visibility time.Duration
}

var _ ports.RetryQueue = (*RetryQueue)(nil)

func NewRetryQueue(db *DB, visibility time.Duration) *RetryQueue {
	return &RetryQueue{q: db.Pool, visibility: visibility}
}

func (rq *RetryQueue) Schedule(ctx context.Context, n domain.RetryNotification, when time.Time) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := rq.q.Exec(ctx, `
			INSERT INTO retry_notifications (id, attempt_id, payment_id, transaction_external_key, plugin_name, effective_date)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID,
		n.AttemptID,
		n.PaymentID,
		n.TransactionExternalKey,
		n.PluginName,
		when,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// ClaimDue marks up to limit due notifications as claimed. Concurrent
// claimers skip each other's rows.
func (rq *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryNotification, error) {
	rows, err := rq.q.Query(ctx, `
			UPDATE retry_notifications SET claimed_at = $1
			WHERE id IN (
				SELECT id FROM retry_notifications
				WHERE effective_date <= $1
					AND (claimed_at IS NULL OR claimed_at < $2)
				ORDER BY effective_date
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, attempt_id, payment_id, transaction_external_key, plugin_name, effective_date`,
		now, now.Add(-rq.visibility), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim retry notifications: %w", err)
	}
	due, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RetryNotification, error) {
		var n domain.RetryNotification
		err := row.Scan(&n.ID, &n.AttemptID, &n.PaymentID, &n.TransactionExternalKey, &n.PluginName, &n.EffectiveDate)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan retry notifications: %w", err)
	}
	return due, nil
}

func (rq *RetryQueue) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := rq.q.Exec(ctx, `DELETE FROM retry_notifications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to complete retry notification: %w", err)
	}
	return nil
}
