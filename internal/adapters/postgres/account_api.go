package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountAPI reads accounts from the billing tables sharing this database.
type AccountAPI struct {
	q Executor
}

var _ ports.AccountAPI = (*AccountAPI)(nil)

func NewAccountAPI(db *DB) *AccountAPI {
	return &AccountAPI{q: db.Pool}
}

func (a *AccountAPI) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := a.q.QueryRow(ctx, `
			SELECT id, external_key, currency, default_payment_method_id
			FROM accounts
			WHERE id = $1`, id,
	).Scan(&acc.ID, &acc.ExternalKey, &acc.Currency, &acc.DefaultPaymentMethodID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewAccountNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &acc, nil
}

func (a *AccountAPI) InsertAccount(ctx context.Context, acc domain.Account) error {
	_, err := a.q.Exec(ctx, `
			INSERT INTO accounts (id, external_key, currency, default_payment_method_id)
			VALUES ($1, $2, $3, $4)`,
		acc.ID, acc.ExternalKey, acc.Currency, acc.DefaultPaymentMethodID,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// SetDefaultPaymentMethod points the account at one of its payment methods.
func (a *AccountAPI) SetDefaultPaymentMethod(ctx context.Context, accountID, paymentMethodID uuid.UUID) error {
	cmdTag, err := a.q.Exec(ctx,
		`UPDATE accounts SET default_payment_method_id = $1 WHERE id = $2`,
		paymentMethodID, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewAccountNotFoundError(accountID)
	}
	return nil
}
