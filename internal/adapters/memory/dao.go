package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/google/uuid"
)

// PaymentDao is a map backed ports.PaymentDao. Values are copied in and out so
// callers never share memory with the store. The *Fn fields override the
// default behaviour for fault injection.
type PaymentDao struct {
	mu             sync.RWMutex
	payments       map[uuid.UUID]*domain.Payment
	transactions   map[uuid.UUID]*domain.PaymentTransaction
	attempts       map[uuid.UUID]*domain.PaymentAttempt
	paymentMethods map[uuid.UUID]*domain.PaymentMethod

	InsertPaymentWithFirstTransactionFn func(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction) (*domain.Payment, error)
	UpdatePaymentWithNewTransactionFn   func(ctx context.Context, paymentID uuid.UUID, txn *domain.PaymentTransaction) (*domain.PaymentTransaction, error)
	UpdateOnCompletionFn                func(ctx context.Context, c domain.TransactionCompletion) error
	GetPaymentFn                        func(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
}

func NewPaymentDao() *PaymentDao {
	return &PaymentDao{
		payments:       make(map[uuid.UUID]*domain.Payment),
		transactions:   make(map[uuid.UUID]*domain.PaymentTransaction),
		attempts:       make(map[uuid.UUID]*domain.PaymentAttempt),
		paymentMethods: make(map[uuid.UUID]*domain.PaymentMethod),
	}
}

// PutPaymentMethod seeds a payment method.
func (d *PaymentDao) PutPaymentMethod(pm domain.PaymentMethod) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paymentMethods[pm.ID] = &pm
}

func (d *PaymentDao) InsertPaymentWithFirstTransaction(ctx context.Context, payment *domain.Payment, txn *domain.PaymentTransaction) (*domain.Payment, error) {
	if d.InsertPaymentWithFirstTransactionFn != nil {
		return d.InsertPaymentWithFirstTransactionFn(ctx, payment, txn)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.payments {
		if p.ExternalKey == payment.ExternalKey {
			return nil, domain.NewInternalError("payment external key "+payment.ExternalKey+" already exists", nil)
		}
	}

	p := *payment
	p.Transactions = nil
	t := *txn
	t.PaymentID = p.ID
	d.payments[p.ID] = &p
	d.transactions[t.ID] = &t

	return d.paymentLocked(p.ID), nil
}

func (d *PaymentDao) UpdatePaymentWithNewTransaction(ctx context.Context, paymentID uuid.UUID, txn *domain.PaymentTransaction) (*domain.PaymentTransaction, error) {
	if d.UpdatePaymentWithNewTransactionFn != nil {
		return d.UpdatePaymentWithNewTransactionFn(ctx, paymentID, txn)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.payments[paymentID]
	if !ok {
		return nil, domain.NewPaymentNotFoundError(paymentID.String())
	}
	t := *txn
	t.PaymentID = paymentID
	d.transactions[t.ID] = &t
	p.UpdatedAt = t.CreatedAt

	out := t
	return &out, nil
}

func (d *PaymentDao) UpdatePaymentAndTransactionOnCompletion(ctx context.Context, c domain.TransactionCompletion) error {
	if d.UpdateOnCompletionFn != nil {
		return d.UpdateOnCompletionFn(ctx, c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.payments[c.PaymentID]
	if !ok {
		return domain.NewPaymentNotFoundError(c.PaymentID.String())
	}
	t, ok := d.transactions[c.TransactionID]
	if !ok || t.PaymentID != c.PaymentID {
		return domain.NewInternalError("transaction "+c.TransactionID.String()+" not found", nil)
	}

	now := time.Now().UTC()
	p.StateName = c.StateName
	if c.LastSuccessStateName != "" {
		p.LastSuccessStateName = c.LastSuccessStateName
	}
	p.UpdatedAt = now

	if t.Status == domain.TransactionStatusSuccess && c.Status != domain.TransactionStatusSuccess {
		return nil
	}
	t.Status = c.Status
	t.ProcessedAmount = c.ProcessedAmount
	t.ProcessedCurrency = c.ProcessedCurrency
	t.GatewayErrorCode = c.GatewayErrorCode
	t.GatewayErrorMsg = c.GatewayErrorMsg
	t.UpdatedAt = now
	return nil
}

func (d *PaymentDao) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	if d.GetPaymentFn != nil {
		return d.GetPaymentFn(ctx, id)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.payments[id]; !ok {
		return nil, domain.NewPaymentNotFoundError(id.String())
	}
	return d.paymentLocked(id), nil
}

func (d *PaymentDao) GetPaymentByExternalKey(ctx context.Context, externalKey string) (*domain.Payment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, p := range d.payments {
		if p.ExternalKey == externalKey {
			return d.paymentLocked(id), nil
		}
	}
	return nil, domain.NewPaymentNotFoundError(externalKey)
}

func (d *PaymentDao) GetTransactionsByExternalKey(ctx context.Context, transactionExternalKey string) ([]*domain.PaymentTransaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*domain.PaymentTransaction
	for _, t := range d.transactions {
		if t.TransactionExternalKey == transactionExternalKey {
			c := *t
			out = append(out, &c)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (d *PaymentDao) GetTransactionsByStatus(ctx context.Context, statuses []domain.TransactionStatus, createdBefore time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	wanted := make(map[domain.TransactionStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*domain.PaymentTransaction
	for _, t := range d.transactions {
		if wanted[t.Status] && t.CreatedAt.Before(createdBefore) {
			c := *t
			out = append(out, &c)
		}
	}
	sortTransactions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *PaymentDao) GetPaymentMethod(ctx context.Context, id uuid.UUID, includeDeleted bool) (*domain.PaymentMethod, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pm, ok := d.paymentMethods[id]
	if !ok || (!pm.IsActive && !includeDeleted) {
		return nil, domain.NewPaymentMethodNotFoundError(id)
	}
	c := *pm
	return &c, nil
}

func (d *PaymentDao) InsertAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := *attempt
	d.attempts[a.ID] = &a
	return nil
}

func (d *PaymentDao) UpdateAttempt(ctx context.Context, attemptID uuid.UUID, transactionID *uuid.UUID, stateName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attempts[attemptID]
	if !ok {
		return domain.NewAttemptNotFoundError(attemptID)
	}
	if transactionID != nil {
		id := *transactionID
		a.TransactionID = &id
	}
	a.StateName = stateName
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *PaymentDao) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.attempts[id]
	if !ok {
		return nil, domain.NewAttemptNotFoundError(id)
	}
	c := *a
	return &c, nil
}

func (d *PaymentDao) GetAttemptsByState(ctx context.Context, stateName string, createdBefore time.Time, limit int) ([]*domain.PaymentAttempt, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*domain.PaymentAttempt
	for _, a := range d.attempts {
		if a.StateName == stateName && a.CreatedAt.Before(createdBefore) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PaymentCount is a test helper.
func (d *PaymentDao) PaymentCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.payments)
}

func (d *PaymentDao) paymentLocked(id uuid.UUID) *domain.Payment {
	p := *d.payments[id]
	p.Transactions = nil
	for _, t := range d.transactions {
		if t.PaymentID == id {
			c := *t
			p.Transactions = append(p.Transactions, &c)
		}
	}
	sortTransactions(p.Transactions)
	return &p
}

func sortTransactions(txns []*domain.PaymentTransaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})
}
