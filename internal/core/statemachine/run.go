package statemachine

import (
	"context"
	"errors"
	"fmt"
)

// LeavingFunc runs before the operation. Returning an *OperationError with a
// result still drives the transition, so the entering callback observes it.
type LeavingFunc func(ctx context.Context, from *State) error

// OperationFunc performs the work and reports its result.
type OperationFunc func(ctx context.Context) (OperationResult, error)

// EnteringFunc runs once the final state is known.
type EnteringFunc func(ctx context.Context, to *State, result OperationResult) error

// Callbacks is the triple handed to RunOperation.
type Callbacks struct {
	Leaving   LeavingFunc
	Operation OperationFunc
	Entering  EnteringFunc
}

// OperationError carries the result an aborted operation must transition with,
// alongside its cause. Err may be nil when the operation reported EXCEPTION
// without a cause.
type OperationError struct {
	Result OperationResult
	Err    error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("operation ended in %s: %v", e.Result, e.Err)
	}
	return fmt.Sprintf("operation ended in %s", e.Result)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// RunOperation executes Leaving, Operation and Entering for op starting at
// from, and returns the final state. A non-nil error is either a lookup
// failure wrapping ErrMissingEntry, an *OperationError, or whatever the
// entering callback returned.
func (a *Automaton) RunOperation(ctx context.Context, from *State, op *Operation, cb Callbacks) (*State, error) {
	start, err := a.EntryState(from, op)
	if err != nil {
		return nil, err
	}

	result, opErr := execute(ctx, start, cb)
	if result == "" {
		return nil, opErr
	}

	to, err := a.FindTransition(start, op, result)
	if err != nil {
		return nil, err
	}

	if cb.Entering != nil {
		if err := cb.Entering(ctx, to, result); err != nil {
			return to, err
		}
	}
	return to, opErr
}

func execute(ctx context.Context, start *State, cb Callbacks) (OperationResult, error) {
	if cb.Leaving != nil {
		if err := cb.Leaving(ctx, start); err != nil {
			var opErr *OperationError
			if errors.As(err, &opErr) && opErr.Result != "" {
				return opErr.Result, opErr
			}
			return "", err
		}
	}

	result, err := cb.Operation(ctx)
	if result == "" {
		return "", fmt.Errorf("%w: operation returned no result: %v", ErrMissingEntry, err)
	}

	var opErr *OperationError
	switch {
	case errors.As(err, &opErr):
		return result, &OperationError{Result: result, Err: opErr.Err}
	case err != nil || result == ResultException:
		return result, &OperationError{Result: result, Err: err}
	}
	return result, nil
}
