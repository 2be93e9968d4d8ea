// Package lifecycle holds the state vocabulary shared by the creator-side
// handle and the worker-side execution context.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// State is a worker lifecycle state. States only ever move forward.
type State int32

const (
	Created State = iota
	Running
	Closing
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Machine is a monotonic state holder safe for concurrent use.
type Machine struct {
	state    atomic.Int32
	doneOnce sync.Once
	done     chan struct{}
}

// NewMachine returns a machine in the Created state.
func NewMachine() *Machine {
	return &Machine{done: make(chan struct{})}
}

// Load returns the current state.
func (m *Machine) Load() State {
	return State(m.state.Load())
}

// Advance moves the machine forward to `to`. It reports false when the
// machine is already at or past `to`; the state is left unchanged then.
func (m *Machine) Advance(to State) bool {
	for {
		cur := m.state.Load()
		if State(cur) >= to {
			return false
		}
		if m.state.CompareAndSwap(cur, int32(to)) {
			if to == Terminated {
				m.doneOnce.Do(func() { close(m.done) })
			}
			return true
		}
	}
}

// Transition moves from exactly `from` to `to`. Backward moves are refused.
func (m *Machine) Transition(from, to State) bool {
	if to <= from {
		return false
	}
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if to == Terminated {
		m.doneOnce.Do(func() { close(m.done) })
	}
	return true
}

// Terminated reports whether the absorbing state has been reached.
func (m *Machine) Terminated() bool {
	return m.Load() == Terminated
}

// Done is closed once the machine reaches Terminated.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}
