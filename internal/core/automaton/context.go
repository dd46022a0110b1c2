package automaton

import (
	"errors"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request is the input of Runner.Run.
type Request struct {
	TransactionType domain.TransactionType `validate:"required,oneof=AUTHORIZE CAPTURE PURCHASE VOID REFUND CREDIT CHARGEBACK"`
	Account         *domain.Account        `validate:"required"`

	PaymentMethodID *uuid.UUID
	PaymentID       *uuid.UUID

	PaymentExternalKey     string `validate:"max=255"`
	TransactionExternalKey string `validate:"max=255"`

	Amount     decimal.Decimal
	Currency   domain.Currency `validate:"omitempty,len=3"`
	Properties []domain.PluginProperty

	// AttemptID links the transaction to the control-layer attempt driving it.
	AttemptID *uuid.UUID
	// IsAPIPayment is false for calls originating from background processing.
	IsAPIPayment bool
	// ShouldLockAccount holds the account lock for the whole run and routes
	// the plugin call through the dispatcher. The control runner already
	// holds the lock and sets it to false.
	ShouldLockAccount bool
}

// StateContext accumulates what one run learns as it moves from leaving to
// entering. It is owned by a single Run invocation.
type StateContext struct {
	req Request

	paymentID          *uuid.UUID
	paymentExternalKey string
	paymentMethodID    uuid.UUID
	currency           domain.Currency

	payment     *domain.Payment
	transaction *domain.PaymentTransaction

	pluginName string
	plugin     ports.PaymentPlugin

	// Set from the dispatcher's return value only, so a task that outlives
	// its timeout can never write here.
	pluginInfo *domain.PluginTransactionInfo
	pluginErr  error
	dispatched bool
	// dispatchErr is a timeout, lock failure or panic raised around the plugin call.
	dispatchErr error
	// lockErr is set when the account lock could not be taken; the plugin is
	// then never called.
	lockErr error

	completion *domain.TransactionCompletion
}

func newStateContext(req Request) *StateContext {
	sc := &StateContext{
		req:                req,
		paymentID:          req.PaymentID,
		paymentExternalKey: req.PaymentExternalKey,
		currency:           req.Currency,
	}
	if sc.currency == "" {
		sc.currency = req.Account.Currency
	}
	if req.TransactionExternalKey == "" {
		sc.req.TransactionExternalKey = uuid.NewString()
	}
	return sc
}

// withPayment records the payment found during resolution. Values supplied on
// the request are kept; the payment only fills what is missing.
func (sc *StateContext) withPayment(p *domain.Payment) *StateContext {
	sc.payment = p
	id := p.ID
	sc.paymentID = &id
	sc.paymentExternalKey = p.ExternalKey
	sc.paymentMethodID = p.PaymentMethodID
	return sc
}

func (sc *StateContext) withPlugin(name string, plugin ports.PaymentPlugin) *StateContext {
	sc.pluginName = name
	sc.plugin = plugin
	return sc
}

func (sc *StateContext) pluginRequest() domain.PluginRequest {
	req := domain.PluginRequest{
		AccountID:       sc.req.Account.ID,
		PaymentMethodID: sc.paymentMethodID,
		Amount:          sc.req.Amount,
		Currency:        sc.currency,
		Properties:      sc.req.Properties,
	}
	if sc.paymentID != nil {
		req.PaymentID = *sc.paymentID
	}
	if sc.transaction != nil {
		req.TransactionID = sc.transaction.ID
	}
	return req
}

func (sc *StateContext) recordPluginOutcome(out pluginOutcome) {
	sc.dispatched = true
	sc.pluginInfo = out.info
	sc.pluginErr = out.err
}

func (sc *StateContext) recordDispatchError(err error) {
	sc.dispatched = true
	sc.dispatchErr = err
}

// snapshot rebuilds the payment from what this run read and wrote. It stands
// in for a fresh read when that read fails after the outcome was recorded.
func (sc *StateContext) snapshot() *domain.Payment {
	if sc.payment == nil {
		return nil
	}
	p := *sc.payment
	p.Transactions = make([]*domain.PaymentTransaction, 0, len(sc.payment.Transactions)+1)

	var current *domain.PaymentTransaction
	if sc.transaction != nil {
		t := *sc.transaction
		current = &t
		if c := sc.completion; c != nil {
			p.StateName = c.StateName
			if c.LastSuccessStateName != "" {
				p.LastSuccessStateName = c.LastSuccessStateName
			}
			current.Status = c.Status
			current.ProcessedAmount = c.ProcessedAmount
			current.ProcessedCurrency = c.ProcessedCurrency
			current.GatewayErrorCode = c.GatewayErrorCode
			current.GatewayErrorMsg = c.GatewayErrorMsg
		}
	}

	for _, t := range sc.payment.Transactions {
		if current != nil && t.ID == current.ID {
			continue
		}
		p.Transactions = append(p.Transactions, t)
	}
	if current != nil {
		p.Transactions = append(p.Transactions, current)
	}
	return &p
}

// completionStatus maps what the plugin reported onto bookkeeping status. It
// has to agree with resultFromPlugin but is computed independently.
func (sc *StateContext) completionStatus() domain.TransactionStatus {
	switch {
	case sc.pluginErr != nil:
		return domain.TransactionStatusPluginFailure
	case errors.Is(sc.dispatchErr, ports.ErrLockFailed):
		// The plugin was never reached.
		return domain.TransactionStatusPluginFailure
	case sc.dispatchErr != nil && sc.pluginInfo == nil:
		return domain.TransactionStatusUnknown
	case !sc.dispatched:
		return domain.TransactionStatusUnknown
	default:
		return domain.TransactionStatusFromPlugin(sc.pluginInfo)
	}
}
