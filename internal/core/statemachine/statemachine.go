// Package statemachine holds the immutable description of the payment and
// control state machines and the logic that drives a single transition.
package statemachine

import (
	"errors"
	"fmt"
)

// OperationResult is the verdict of an operation callback.
type OperationResult string

const (
	ResultSuccess   OperationResult = "SUCCESS"
	ResultFailure   OperationResult = "FAILURE"
	ResultPending   OperationResult = "PENDING"
	ResultException OperationResult = "EXCEPTION"
)

// Results lists every operation result a non-terminal state must handle.
var Results = []OperationResult{ResultSuccess, ResultFailure, ResultPending, ResultException}

// ErrMissingEntry is returned when a state, operation, link or transition
// cannot be found.
var ErrMissingEntry = errors.New("missing state machine entry")

// State is a named state owned by exactly one machine.
type State struct {
	Name    string
	Machine string
}

// Operation is the single unit of work bound to a machine.
type Operation struct {
	Name    string
	Machine string
}

// TransitionDef declares (From, Result) -> To inside one machine.
type TransitionDef struct {
	From   string
	Result OperationResult
	To     string
}

// MachineDef declares one machine.
type MachineDef struct {
	Name        string
	Initial     string
	States      []string
	Operation   string
	Transitions []TransitionDef
}

// LinkDef lets a state of one machine continue in the initial state of Machine.
type LinkDef struct {
	From    string
	Machine string
}

// Definition is the full configuration an Automaton is built from.
type Definition struct {
	Machines []MachineDef
	Links    []LinkDef
}

type transitionKey struct {
	from   string
	op     string
	result OperationResult
}

type linkKey struct {
	from    string
	machine string
}

// Automaton is the validated, indexed form of a Definition. It is safe for
// concurrent use since nothing mutates it after New returns.
type Automaton struct {
	states      map[string]*State
	operations  map[string]*Operation
	initial     map[string]*State
	byMachine   map[string][]*State
	transitions map[transitionKey]*State
	links       map[linkKey]*State
}

// New validates def and builds the lookup index.
func New(def Definition) (*Automaton, error) {
	a := &Automaton{
		states:      make(map[string]*State),
		operations:  make(map[string]*Operation),
		initial:     make(map[string]*State),
		byMachine:   make(map[string][]*State),
		transitions: make(map[transitionKey]*State),
		links:       make(map[linkKey]*State),
	}

	for _, m := range def.Machines {
		if err := a.addMachine(m); err != nil {
			return nil, fmt.Errorf("machine %q: %w", m.Name, err)
		}
	}

	for _, l := range def.Links {
		from, ok := a.states[l.From]
		if !ok {
			return nil, fmt.Errorf("link from unknown state %q", l.From)
		}
		target, ok := a.initial[l.Machine]
		if !ok {
			return nil, fmt.Errorf("link from %q to unknown machine %q", l.From, l.Machine)
		}
		key := linkKey{from: from.Name, machine: l.Machine}
		if _, dup := a.links[key]; dup {
			return nil, fmt.Errorf("duplicate link from %q to %q", l.From, l.Machine)
		}
		a.links[key] = target
	}

	return a, nil
}

// MustNew is New for package-level tables: a broken table is a startup bug.
func MustNew(def Definition) *Automaton {
	a, err := New(def)
	if err != nil {
		panic(fmt.Sprintf("invalid state machine definition: %v", err))
	}
	return a
}

func (a *Automaton) addMachine(m MachineDef) error {
	if m.Name == "" {
		return errors.New("empty machine name")
	}
	if _, dup := a.initial[m.Name]; dup {
		return errors.New("duplicate machine")
	}
	if m.Operation == "" {
		return errors.New("machine has no operation")
	}
	if _, dup := a.operations[m.Operation]; dup {
		return fmt.Errorf("operation %q already bound to another machine", m.Operation)
	}

	for _, name := range m.States {
		if name == "" {
			return errors.New("empty state name")
		}
		if _, dup := a.states[name]; dup {
			return fmt.Errorf("state %q declared twice", name)
		}
		st := &State{Name: name, Machine: m.Name}
		a.states[name] = st
		a.byMachine[m.Name] = append(a.byMachine[m.Name], st)
	}

	initial, ok := a.states[m.Initial]
	if !ok || initial.Machine != m.Name {
		return fmt.Errorf("initial state %q is not a state of the machine", m.Initial)
	}
	a.initial[m.Name] = initial
	a.operations[m.Operation] = &Operation{Name: m.Operation, Machine: m.Name}

	sources := make(map[string]bool)
	for _, t := range m.Transitions {
		from, ok := a.states[t.From]
		if !ok || from.Machine != m.Name {
			return fmt.Errorf("transition from foreign state %q", t.From)
		}
		to, ok := a.states[t.To]
		if !ok || to.Machine != m.Name {
			return fmt.Errorf("transition to foreign state %q", t.To)
		}
		if !validResult(t.Result) {
			return fmt.Errorf("transition from %q has unknown result %q", t.From, t.Result)
		}
		key := transitionKey{from: t.From, op: m.Operation, result: t.Result}
		if _, dup := a.transitions[key]; dup {
			return fmt.Errorf("duplicate transition %s/%s", t.From, t.Result)
		}
		a.transitions[key] = to
		sources[t.From] = true
	}

	if !sources[m.Initial] {
		return fmt.Errorf("initial state %q has no outgoing transition", m.Initial)
	}
	for from := range sources {
		for _, r := range Results {
			if _, ok := a.transitions[transitionKey{from: from, op: m.Operation, result: r}]; !ok {
				return fmt.Errorf("state %q has no transition for %s", from, r)
			}
		}
	}
	return nil
}

func validResult(r OperationResult) bool {
	for _, known := range Results {
		if r == known {
			return true
		}
	}
	return false
}

// State returns the state with the given name.
func (a *Automaton) State(name string) (*State, error) {
	st, ok := a.states[name]
	if !ok {
		return nil, fmt.Errorf("%w: state %q", ErrMissingEntry, name)
	}
	return st, nil
}

// Operation returns the operation with the given name.
func (a *Automaton) Operation(name string) (*Operation, error) {
	op, ok := a.operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: operation %q", ErrMissingEntry, name)
	}
	return op, nil
}

// InitialState returns the initial state of a machine.
func (a *Automaton) InitialState(machine string) (*State, error) {
	st, ok := a.initial[machine]
	if !ok {
		return nil, fmt.Errorf("%w: machine %q", ErrMissingEntry, machine)
	}
	return st, nil
}

// States returns the states of a machine in declaration order.
func (a *Automaton) States(machine string) []*State {
	return a.byMachine[machine]
}

// FindTransition returns the final state for (from, op, result).
func (a *Automaton) FindTransition(from *State, op *Operation, result OperationResult) (*State, error) {
	to, ok := a.transitions[transitionKey{from: from.Name, op: op.Name, result: result}]
	if !ok {
		return nil, fmt.Errorf("%w: transition %s --%s/%s-->", ErrMissingEntry, from.Name, op.Name, result)
	}
	return to, nil
}

// EntryState resolves where op actually starts when invoked from `from`:
// through a link when one is declared, otherwise from `from` itself if it
// belongs to the operation's machine and has outgoing transitions.
func (a *Automaton) EntryState(from *State, op *Operation) (*State, error) {
	if linked, ok := a.links[linkKey{from: from.Name, machine: op.Machine}]; ok {
		return linked, nil
	}
	if from.Machine == op.Machine {
		if _, ok := a.transitions[transitionKey{from: from.Name, op: op.Name, result: ResultSuccess}]; ok {
			return from, nil
		}
	}
	return nil, fmt.Errorf("%w: %s cannot run from %s", ErrMissingEntry, op.Name, from.Name)
}

// CanRun reports whether op is reachable from `from`.
func (a *Automaton) CanRun(from *State, op *Operation) bool {
	_, err := a.EntryState(from, op)
	return err == nil
}
