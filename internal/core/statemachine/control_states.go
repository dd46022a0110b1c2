package statemachine

const (
	ControlMachine   = "RETRY"
	ControlOperation = "OP_RETRY"

	ControlStateInit    = "INIT"
	ControlStateSuccess = "SUCCESS"
	ControlStateRetried = "RETRIED"
	ControlStateAborted = "ABORTED"
)

// ControlDefinition is the control/retry machine. RETRIED is terminal for one
// invocation; the next invocation links it back to INIT.
func ControlDefinition() Definition {
	return Definition{
		Machines: []MachineDef{{
			Name:      ControlMachine,
			Initial:   ControlStateInit,
			States:    []string{ControlStateInit, ControlStateSuccess, ControlStateRetried, ControlStateAborted},
			Operation: ControlOperation,
			Transitions: []TransitionDef{
				{From: ControlStateInit, Result: ResultSuccess, To: ControlStateSuccess},
				{From: ControlStateInit, Result: ResultPending, To: ControlStateSuccess},
				{From: ControlStateInit, Result: ResultFailure, To: ControlStateRetried},
				{From: ControlStateInit, Result: ResultException, To: ControlStateAborted},
			},
		}},
		Links: []LinkDef{
			{From: ControlStateRetried, Machine: ControlMachine},
		},
	}
}

// ControlStateMachine exposes the control machine's fixed states.
type ControlStateMachine struct {
	*Automaton
	Init      *State
	Retried   *State
	Operation *Operation
}

// NewControlStateMachine builds and validates the control machine.
func NewControlStateMachine() (*ControlStateMachine, error) {
	a, err := New(ControlDefinition())
	if err != nil {
		return nil, err
	}
	initial, err := a.State(ControlStateInit)
	if err != nil {
		return nil, err
	}
	retried, err := a.State(ControlStateRetried)
	if err != nil {
		return nil, err
	}
	op, err := a.Operation(ControlOperation)
	if err != nil {
		return nil, err
	}
	return &ControlStateMachine{Automaton: a, Init: initial, Retried: retried, Operation: op}, nil
}
