// Package lifecycle implements the managed-node state machine that drives a controller between
// unconfigured, inactive, active and finalized states.
package lifecycle

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/jtc/logging"
)

// State is a lifecycle state.
type State int32

const (
	// Unconfigured is the initial state and the state after a cleanup or recovery.
	Unconfigured State = iota
	// Inactive means configured but not commanding hardware.
	Inactive
	// Active means the control loop is commanding hardware.
	Active
	// Finalized is terminal.
	Finalized
	// Error is entered on an unrecoverable fault. Only Recover and Shutdown leave it.
	Error
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Finalized:
		return "finalized"
	case Error:
		return "error"
	}
	return "unknown"
}

// Transition is an event requesting a state change.
type Transition int

const (
	// Configure moves Unconfigured to Inactive.
	Configure Transition = iota
	// Activate moves Inactive to Active.
	Activate
	// Deactivate moves Active to Inactive.
	Deactivate
	// Cleanup moves Inactive to Unconfigured.
	Cleanup
	// Shutdown moves any non-terminal state to Finalized.
	Shutdown
	// RaiseError moves any non-terminal state to Error.
	RaiseError
	// Recover moves Error back to Unconfigured.
	Recover
)

func (t Transition) String() string {
	switch t {
	case Configure:
		return "configure"
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	case Cleanup:
		return "cleanup"
	case Shutdown:
		return "shutdown"
	case RaiseError:
		return "error"
	case Recover:
		return "recover"
	}
	return "unknown"
}

// ErrInvalidTransition is returned when a transition is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// Hook is the side effect run for a transition. from is the state being left.
type Hook func(ctx context.Context, from State) error

type edge struct {
	from State
	via  Transition
}

var table = map[edge]State{
	{Unconfigured, Configure}: Inactive,
	{Inactive, Activate}:      Active,
	{Active, Deactivate}:      Inactive,
	{Inactive, Cleanup}:       Unconfigured,

	{Unconfigured, Shutdown}: Finalized,
	{Inactive, Shutdown}:     Finalized,
	{Active, Shutdown}:       Finalized,
	{Error, Shutdown}:        Finalized,

	{Unconfigured, RaiseError}: Error,
	{Inactive, RaiseError}:     Error,
	{Active, RaiseError}:       Error,

	{Error, Recover}: Unconfigured,
}

// Machine runs hooks and tracks the current state. Transitions are serialized; State can be read
// from any goroutine without taking the transition lock.
type Machine struct {
	mu     sync.Mutex
	state  atomic.Int32
	hooks  map[Transition]Hook
	logger logging.Logger
}

// NewMachine returns a machine in the Unconfigured state. Transitions without a hook only change
// the state.
func NewMachine(hooks map[Transition]Hook, logger logging.Logger) *Machine {
	m := &Machine{hooks: make(map[Transition]Hook, len(hooks)), logger: logger}
	for t, h := range hooks {
		m.hooks[t] = h
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Allowed reports whether t may be triggered from the current state.
func (m *Machine) Allowed(t Transition) bool {
	_, ok := table[edge{m.State(), t}]
	return ok
}

// Trigger runs the hook for t and moves to the target state. When a hook fails the state is left
// unchanged, except for RaiseError which always ends in Error.
func (m *Machine) Trigger(ctx context.Context, t Transition) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	to, ok := table[edge{from, t}]
	if !ok {
		return from, errors.Wrapf(ErrInvalidTransition, "cannot %s from %s", t, from)
	}

	if hook := m.hooks[t]; hook != nil {
		if err := hook(ctx, from); err != nil {
			if t != RaiseError {
				m.logger.Warnw("lifecycle transition failed", "transition", t.String(), "state", from.String(), "error", err)
				return from, errors.Wrapf(err, "%s failed", t)
			}
			m.logger.Errorw("error handling failed", "state", from.String(), "error", err)
		}
	}

	m.state.Store(int32(to))
	m.logger.Debugw("lifecycle transition", "transition", t.String(), "from", from.String(), "to", to.String())
	return to, nil
}
