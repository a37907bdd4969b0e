// Package lifecycle implements the recorder state machine. Every transition
// runs under one mutex and commits only when its action succeeds, so a
// rejected or failed transition leaves no partial effects.
package lifecycle

import (
	"slices"
	"sync"

	"github.com/tphakala/audiocapture/internal/status"
)

// State is a recorder lifecycle state.
type State int32

const (
	// Uninitialized is a session object that has not been opened.
	Uninitialized State = iota
	Initialized
	Recording
	Stopped
	// Deleted is terminal.
	Deleted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a requested transition.
type Event int

const (
	Open Event = iota
	Start
	Stop
	Delete
)

func (e Event) String() string {
	switch e {
	case Open:
		return "open"
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

type rule struct {
	from []State
	to   State
}

var rules = map[Event]rule{
	Open:   {from: []State{Uninitialized}, to: Initialized},
	Start:  {from: []State{Initialized, Stopped}, to: Recording},
	Stop:   {from: []State{Recording}, to: Stopped},
	Delete: {from: []State{Uninitialized, Initialized, Recording, Stopped}, to: Deleted},
}

// Observer is notified after every committed transition, still under the
// machine lock. It must not call back into the machine.
type Observer func(ev Event, from, to State)

// Machine guards the lifecycle of one recorder.
type Machine struct {
	mu          sync.Mutex
	state       State
	everStarted bool
	observer    Observer
}

// New returns a machine in the Uninitialized state.
func New(observer Observer) *Machine {
	return &Machine{observer: observer}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EverStarted reports whether a Start has ever committed.
func (m *Machine) EverStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.everStarted
}

// Fire performs ev. action runs under the lock after the transition is
// validated. If action fails the state is unchanged and its error returned.
// action may be nil.
func (m *Machine) Fire(ev Event, action func() error) error {
	r, ok := rules[ev]
	if !ok {
		return status.Newf(status.RuntimeError, "lifecycle", ev.String(), "unknown lifecycle event %d", int(ev))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !slices.Contains(r.from, from) {
		return rejection(ev, from)
	}
	if action != nil {
		if err := action(); err != nil {
			return err
		}
	}

	m.state = r.to
	if r.to == Recording {
		m.everStarted = true
	}
	if m.observer != nil {
		m.observer(ev, from, r.to)
	}
	return nil
}

// View runs fn under the lock with the current state and whether a Start
// ever committed, for operations that must not race a transition.
func (m *Machine) View(fn func(st State, everStarted bool) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state, m.everStarted)
}

func rejection(ev Event, from State) error {
	s := status.InvalidState
	switch {
	case from == Deleted:
	case ev == Open:
		s = status.DeviceAlreadyInitialized
	case from == Uninitialized:
		s = status.DeviceNotInitialized
	}
	return status.Newf(s, "lifecycle", ev.String(), "cannot %s while %s", ev, from)
}
