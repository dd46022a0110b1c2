// Package sqlite keeps the retry queue in a local SQLite file for deployments
// that run a single automaton process.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// the queue table exists. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: writers are serialized and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retry_notifications (
			id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL,
			payment_id TEXT,
			transaction_external_key TEXT NOT NULL,
			plugin_name TEXT NOT NULL DEFAULT '',
			effective_date INTEGER NOT NULL,
			claimed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_retry_notifications_due ON retry_notifications(effective_date)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return db, nil
}

// RetryQueue is the SQLite ports.RetryQueue. Times are stored as Unix
// nanoseconds so ordering and comparisons stay numeric.
type RetryQueue struct {
	db         *sql.DB
	visibility time.Duration
}

var _ ports.RetryQueue = (*RetryQueue)(nil)

func NewRetryQueue(db *sql.DB, visibility time.Duration) *RetryQueue {
	return &RetryQueue{db: db, visibility: visibility}
}

func (q *RetryQueue) Schedule(ctx context.Context, n domain.RetryNotification, when time.Time) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	var paymentID sql.NullString
	if n.PaymentID != nil {
		paymentID = sql.NullString{String: n.PaymentID.String(), Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO retry_notifications (id, attempt_id, payment_id, transaction_external_key, plugin_name, effective_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.AttemptID.String(), paymentID, n.TransactionExternalKey, n.PluginName, when.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (q *RetryQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryNotification, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, attempt_id, payment_id, transaction_external_key, plugin_name, effective_date
		FROM retry_notifications
		WHERE effective_date <= ? AND (claimed_at IS NULL OR claimed_at < ?)
		ORDER BY effective_date
		LIMIT ?`,
		now.UnixNano(), now.Add(-q.visibility).UnixNano(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due retries: %w", err)
	}

	var due []domain.RetryNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate due retries: %w", err)
	}
	rows.Close()

	for _, n := range due {
		if _, err := tx.ExecContext(ctx, `UPDATE retry_notifications SET claimed_at = ? WHERE id = ?`, now.UnixNano(), n.ID.String()); err != nil {
			return nil, fmt.Errorf("claim retry %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return due, nil
}

func (q *RetryQueue) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM retry_notifications WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("complete retry: %w", err)
	}
	return nil
}

func scanNotification(rows *sql.Rows) (domain.RetryNotification, error) {
	var (
		n                  domain.RetryNotification
		id, attemptID      string
		paymentID          sql.NullString
		effectiveDateNanos int64
	)
	if err := rows.Scan(&id, &attemptID, &paymentID, &n.TransactionExternalKey, &n.PluginName, &effectiveDateNanos); err != nil {
		return n, fmt.Errorf("scan retry: %w", err)
	}

	var err error
	if n.ID, err = uuid.Parse(id); err != nil {
		return n, fmt.Errorf("parse retry id: %w", err)
	}
	if n.AttemptID, err = uuid.Parse(attemptID); err != nil {
		return n, fmt.Errorf("parse attempt id: %w", err)
	}
	if paymentID.Valid {
		pid, err := uuid.Parse(paymentID.String)
		if err != nil {
			return n, fmt.Errorf("parse payment id: %w", err)
		}
		n.PaymentID = &pid
	}
	n.EffectiveDate = time.Unix(0, effectiveDateNanos).UTC()
	return n, nil
}
