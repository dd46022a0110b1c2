package statemachine

import (
	"fmt"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
)

type transactionMachine struct {
	prefix    string
	operation string
}

var transactionMachines = map[domain.TransactionType]transactionMachine{
	domain.TransactionTypeAuthorize:  {prefix: "AUTH", operation: "OP_AUTHORIZE"},
	domain.TransactionTypeCapture:    {prefix: "CAPTURE", operation: "OP_CAPTURE"},
	domain.TransactionTypePurchase:   {prefix: "PURCHASE", operation: "OP_PURCHASE"},
	domain.TransactionTypeVoid:       {prefix: "VOID", operation: "OP_VOID"},
	domain.TransactionTypeRefund:     {prefix: "REFUND", operation: "OP_REFUND"},
	domain.TransactionTypeCredit:     {prefix: "CREDIT", operation: "OP_CREDIT"},
	domain.TransactionTypeChargeback: {prefix: "CHARGEBACK", operation: "OP_CHARGEBACK"},
}

// paymentLinks lists which machines may follow a successful state.
var paymentLinks = []LinkDef{
	{From: "AUTH_SUCCESS", Machine: string(domain.TransactionTypeCapture)},
	{From: "AUTH_SUCCESS", Machine: string(domain.TransactionTypeVoid)},
	{From: "CAPTURE_SUCCESS", Machine: string(domain.TransactionTypeCapture)},
	{From: "CAPTURE_SUCCESS", Machine: string(domain.TransactionTypeRefund)},
	{From: "CAPTURE_SUCCESS", Machine: string(domain.TransactionTypeChargeback)},
	{From: "PURCHASE_SUCCESS", Machine: string(domain.TransactionTypeRefund)},
	{From: "PURCHASE_SUCCESS", Machine: string(domain.TransactionTypeChargeback)},
	{From: "REFUND_SUCCESS", Machine: string(domain.TransactionTypeRefund)},
	{From: "REFUND_SUCCESS", Machine: string(domain.TransactionTypeChargeback)},
	{From: "CHARGEBACK_SUCCESS", Machine: string(domain.TransactionTypeChargeback)},
}

// PaymentDefinition is one machine per transaction type. Each machine has
// INIT, PENDING, SUCCESS, FAILED and ERRORED states; INIT and PENDING are the
// only states with outgoing transitions.
func PaymentDefinition() Definition {
	def := Definition{Links: paymentLinks}
	for _, t := range domain.TransactionTypes {
		tm := transactionMachines[t]
		initial := tm.prefix + "_INIT"
		pending := tm.prefix + "_PENDING"
		success := tm.prefix + "_SUCCESS"
		failed := tm.prefix + "_FAILED"
		errored := tm.prefix + "_ERRORED"

		var transitions []TransitionDef
		for _, from := range []string{initial, pending} {
			transitions = append(transitions,
				TransitionDef{From: from, Result: ResultSuccess, To: success},
				TransitionDef{From: from, Result: ResultPending, To: pending},
				TransitionDef{From: from, Result: ResultFailure, To: failed},
				TransitionDef{From: from, Result: ResultException, To: errored},
			)
		}

		def.Machines = append(def.Machines, MachineDef{
			Name:        string(t),
			Initial:     initial,
			States:      []string{initial, pending, success, failed, errored},
			Operation:   tm.operation,
			Transitions: transitions,
		})
	}
	return def
}

// PaymentStateMachine answers the per-transaction-type questions the
// automaton runner asks.
type PaymentStateMachine struct {
	*Automaton
	initial    map[domain.TransactionType]*State
	operations map[domain.TransactionType]*Operation
}

// NewPaymentStateMachine builds and validates the payment machines.
func NewPaymentStateMachine() (*PaymentStateMachine, error) {
	a, err := New(PaymentDefinition())
	if err != nil {
		return nil, err
	}

	m := &PaymentStateMachine{
		Automaton:  a,
		initial:    make(map[domain.TransactionType]*State),
		operations: make(map[domain.TransactionType]*Operation),
	}
	for t, tm := range transactionMachines {
		st, err := a.InitialState(string(t))
		if err != nil {
			return nil, err
		}
		op, err := a.Operation(tm.operation)
		if err != nil {
			return nil, err
		}
		m.initial[t] = st
		m.operations[t] = op
	}
	return m, nil
}

// InitialState returns `<TYPE>_INIT`.
func (m *PaymentStateMachine) InitialState(t domain.TransactionType) (*State, error) {
	st, ok := m.initial[t]
	if !ok {
		return nil, fmt.Errorf("%w: transaction type %q", ErrMissingEntry, t)
	}
	return st, nil
}

// Operation returns the operation bound to the transaction type's machine.
func (m *PaymentStateMachine) Operation(t domain.TransactionType) (*Operation, error) {
	op, ok := m.operations[t]
	if !ok {
		return nil, fmt.Errorf("%w: transaction type %q", ErrMissingEntry, t)
	}
	return op, nil
}
