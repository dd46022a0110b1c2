package memory

import (
	"context"
	"sync"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
)

// AccountAPI is a map backed ports.AccountAPI.
type AccountAPI struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.Account
}

func NewAccountAPI(accounts ...domain.Account) *AccountAPI {
	a := &AccountAPI{accounts: make(map[uuid.UUID]domain.Account)}
	for _, acc := range accounts {
		a.accounts[acc.ID] = acc
	}
	return a
}

func (a *AccountAPI) Put(acc domain.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[acc.ID] = acc
}

func (a *AccountAPI) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.accounts[id]
	if !ok {
		return nil, domain.NewAccountNotFoundError(id)
	}
	return &acc, nil
}
