package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/domain"
	"github.com/DanielPopoola/ficmart-payment-automaton/internal/core/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var expectedSuffix = map[statemachine.OperationResult]string{
	statemachine.ResultSuccess:   "_SUCCESS",
	statemachine.ResultPending:   "_PENDING",
	statemachine.ResultFailure:   "_FAILED",
	statemachine.ResultException: "_ERRORED",
}

var prefixes = map[domain.TransactionType]string{
	domain.TransactionTypeAuthorize:  "AUTH",
	domain.TransactionTypeCapture:    "CAPTURE",
	domain.TransactionTypePurchase:   "PURCHASE",
	domain.TransactionTypeVoid:       "VOID",
	domain.TransactionTypeRefund:     "REFUND",
	domain.TransactionTypeCredit:     "CREDIT",
	domain.TransactionTypeChargeback: "CHARGEBACK",
}

func TestPaymentStateMachine_TransitionsAreDeterministic(t *testing.T) {
	sm, err := statemachine.NewPaymentStateMachine()
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		txType := rapid.SampledFrom(domain.TransactionTypes).Draw(t, "type")
		result := rapid.SampledFrom(statemachine.Results).Draw(t, "result")

		start, err := sm.InitialState(txType)
		if err != nil {
			t.Fatalf("no initial state for %s: %v", txType, err)
		}
		op, err := sm.Operation(txType)
		if err != nil {
			t.Fatalf("no operation for %s: %v", txType, err)
		}

		first, err := sm.FindTransition(start, op, result)
		if err != nil {
			t.Fatalf("missing transition %s/%s: %v", start.Name, result, err)
		}
		second, err := sm.FindTransition(start, op, result)
		if err != nil || first != second {
			t.Fatalf("lookup not deterministic for %s/%s", start.Name, result)
		}

		want := prefixes[txType] + expectedSuffix[result]
		if first.Name != want {
			t.Fatalf("%s/%s -> %s, want %s", start.Name, result, first.Name, want)
		}
		if first.Machine != string(txType) {
			t.Fatalf("final state %s belongs to %s", first.Name, first.Machine)
		}
	})
}

func TestPaymentStateMachine_Links(t *testing.T) {
	sm, err := statemachine.NewPaymentStateMachine()
	require.NoError(t, err)

	state := func(name string) *statemachine.State {
		st, err := sm.State(name)
		require.NoError(t, err)
		return st
	}
	op := func(tt domain.TransactionType) *statemachine.Operation {
		o, err := sm.Operation(tt)
		require.NoError(t, err)
		return o
	}

	t.Run("capture follows a successful authorization", func(t *testing.T) {
		entry, err := sm.EntryState(state("AUTH_SUCCESS"), op(domain.TransactionTypeCapture))
		require.NoError(t, err)
		assert.Equal(t, "CAPTURE_INIT", entry.Name)
	})

	t.Run("refund is not reachable from an authorization", func(t *testing.T) {
		assert.False(t, sm.CanRun(state("AUTH_SUCCESS"), op(domain.TransactionTypeRefund)))
	})

	t.Run("pending purchase can be completed", func(t *testing.T) {
		entry, err := sm.EntryState(state("PURCHASE_PENDING"), op(domain.TransactionTypePurchase))
		require.NoError(t, err)
		assert.Equal(t, "PURCHASE_PENDING", entry.Name)
	})

	t.Run("terminal states do not re-run their own operation", func(t *testing.T) {
		_, err := sm.EntryState(state("VOID_SUCCESS"), op(domain.TransactionTypeVoid))
		assert.ErrorIs(t, err, statemachine.ErrMissingEntry)
	})
}

func TestControlStateMachine(t *testing.T) {
	sm, err := statemachine.NewControlStateMachine()
	require.NoError(t, err)

	entry, err := sm.EntryState(sm.Retried, sm.Operation)
	require.NoError(t, err)
	assert.Equal(t, statemachine.ControlStateInit, entry.Name)

	cases := map[statemachine.OperationResult]string{
		statemachine.ResultSuccess:   statemachine.ControlStateSuccess,
		statemachine.ResultPending:   statemachine.ControlStateSuccess,
		statemachine.ResultFailure:   statemachine.ControlStateRetried,
		statemachine.ResultException: statemachine.ControlStateAborted,
	}
	for result, want := range cases {
		to, err := sm.FindTransition(sm.Init, sm.Operation, result)
		require.NoError(t, err)
		assert.Equal(t, want, to.Name, result)
	}
}

func TestNew_RejectsInvalidDefinitions(t *testing.T) {
	complete := func(from, to string) []statemachine.TransitionDef {
		var out []statemachine.TransitionDef
		for _, r := range statemachine.Results {
			out = append(out, statemachine.TransitionDef{From: from, Result: r, To: to})
		}
		return out
	}

	tests := []struct {
		name string
		def  statemachine.Definition
	}{
		{
			name: "unknown initial state",
			def: statemachine.Definition{Machines: []statemachine.MachineDef{{
				Name: "M", Initial: "NOPE", States: []string{"A", "B"}, Operation: "OP",
				Transitions: complete("A", "B"),
			}}},
		},
		{
			name: "missing result edge",
			def: statemachine.Definition{Machines: []statemachine.MachineDef{{
				Name: "M", Initial: "A", States: []string{"A", "B"}, Operation: "OP",
				Transitions: complete("A", "B")[:3],
			}}},
		},
		{
			name: "transition to foreign state",
			def: statemachine.Definition{Machines: []statemachine.MachineDef{{
				Name: "M", Initial: "A", States: []string{"A"}, Operation: "OP",
				Transitions: complete("A", "ELSEWHERE"),
			}}},
		},
		{
			name: "state declared twice",
			def: statemachine.Definition{Machines: []statemachine.MachineDef{
				{Name: "M", Initial: "A", States: []string{"A", "B"}, Operation: "OP1", Transitions: complete("A", "B")},
				{Name: "N", Initial: "A", States: []string{"A"}, Operation: "OP2"},
			}},
		},
		{
			name: "link to unknown machine",
			def: statemachine.Definition{
				Machines: []statemachine.MachineDef{{Name: "M", Initial: "A", States: []string{"A", "B"}, Operation: "OP", Transitions: complete("A", "B")}},
				Links:    []statemachine.LinkDef{{From: "B", Machine: "Z"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := statemachine.New(tt.def)
			assert.Error(t, err)
			assert.Panics(t, func() { statemachine.MustNew(tt.def) })
		})
	}
}

func TestRunOperation(t *testing.T) {
	sm, err := statemachine.NewPaymentStateMachine()
	require.NoError(t, err)
	start, _ := sm.InitialState(domain.TransactionTypePurchase)
	op, _ := sm.Operation(domain.TransactionTypePurchase)
	ctx := context.Background()

	t.Run("runs leaving, operation and entering in order", func(t *testing.T) {
		var calls []string
		to, err := sm.RunOperation(ctx, start, op, statemachine.Callbacks{
			Leaving: func(ctx context.Context, from *statemachine.State) error {
				calls = append(calls, "leaving:"+from.Name)
				return nil
			},
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				calls = append(calls, "operation")
				return statemachine.ResultSuccess, nil
			},
			Entering: func(ctx context.Context, to *statemachine.State, result statemachine.OperationResult) error {
				calls = append(calls, "entering:"+to.Name)
				return nil
			},
		})

		require.NoError(t, err)
		assert.Equal(t, "PURCHASE_SUCCESS", to.Name)
		assert.Equal(t, []string{"leaving:PURCHASE_INIT", "operation", "entering:PURCHASE_SUCCESS"}, calls)
	})

	t.Run("leaving failure with a result skips the operation but still enters", func(t *testing.T) {
		cause := errors.New("currency mismatch")
		operationCalled := false
		var entered string

		to, err := sm.RunOperation(ctx, start, op, statemachine.Callbacks{
			Leaving: func(ctx context.Context, from *statemachine.State) error {
				return &statemachine.OperationError{Result: statemachine.ResultException, Err: cause}
			},
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				operationCalled = true
				return statemachine.ResultSuccess, nil
			},
			Entering: func(ctx context.Context, to *statemachine.State, result statemachine.OperationResult) error {
				entered = to.Name
				return nil
			},
		})

		assert.False(t, operationCalled)
		assert.Equal(t, "PURCHASE_ERRORED", entered)
		require.NotNil(t, to)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("leaving failure without a result aborts the transition", func(t *testing.T) {
		cause := errors.New("boom")
		entered := false
		to, err := sm.RunOperation(ctx, start, op, statemachine.Callbacks{
			Leaving: func(ctx context.Context, from *statemachine.State) error { return cause },
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				return statemachine.ResultSuccess, nil
			},
			Entering: func(ctx context.Context, to *statemachine.State, result statemachine.OperationResult) error {
				entered = true
				return nil
			},
		})

		assert.Nil(t, to)
		assert.False(t, entered)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("exception without cause is reported as an operation error", func(t *testing.T) {
		to, err := sm.RunOperation(ctx, start, op, statemachine.Callbacks{
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				return statemachine.ResultException, nil
			},
		})

		assert.Equal(t, "PURCHASE_ERRORED", to.Name)
		var opErr *statemachine.OperationError
		require.ErrorAs(t, err, &opErr)
		assert.Nil(t, opErr.Err)
	})

	t.Run("failure result is not an error", func(t *testing.T) {
		to, err := sm.RunOperation(ctx, start, op, statemachine.Callbacks{
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				return statemachine.ResultFailure, nil
			},
		})

		require.NoError(t, err)
		assert.Equal(t, "PURCHASE_FAILED", to.Name)
	})

	t.Run("unreachable operation is a missing entry", func(t *testing.T) {
		voided, _ := sm.State("VOID_SUCCESS")
		_, err := sm.RunOperation(ctx, voided, op, statemachine.Callbacks{
			Operation: func(ctx context.Context) (statemachine.OperationResult, error) {
				return statemachine.ResultSuccess, nil
			},
		})
		assert.ErrorIs(t, err, statemachine.ErrMissingEntry)
	})
}
