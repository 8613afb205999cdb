package recorder

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a recording session.
type State int

const (
	// StateIdle means no session exists and a new one may start.
	StateIdle State = iota

	// StateRecording means audio is being captured and encoded.
	StateRecording

	// StateFinalizing means the encoder is being flushed and the file saved.
	StateFinalizing

	// StateError means the last session failed. A reset returns to Idle.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrDuplicateStart is returned by [Machine.Start] when a session is already
// running. It is a guard rejection, not a user-visible failure.
var ErrDuplicateStart = errors.New("recorder: duplicate start")

// ErrDuplicateStop is returned by [Machine.Stop] when there is nothing left
// to stop. Callers treat it as a no-op.
var ErrDuplicateStop = errors.New("recorder: duplicate stop")

// ErrInvalidTransition is returned for transitions the lifecycle forbids.
var ErrInvalidTransition = errors.New("recorder: invalid state transition")

// Machine is the recording lifecycle:
//
//	Idle --Start--> Recording --Stop--> Finalizing --Finish--> Idle | Error
//	Recording --Fail--> Error --Reset--> Idle
//
// Rejected calls leave the state untouched and report it. All methods are
// safe for concurrent use.
type Machine struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start moves Idle to Recording. In any other state it returns the current
// state and [ErrDuplicateStart].
func (m *Machine) Start() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return m.state, ErrDuplicateStart
	}
	m.state = StateRecording
	return m.state, nil
}

// Stop moves Recording to Finalizing. It is the single guard that makes a
// user stop and a stream-ended stop mutually exclusive: whichever calls it
// first wins and the other gets [ErrDuplicateStop].
func (m *Machine) Stop() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return m.state, ErrDuplicateStop
	}
	m.state = StateFinalizing
	return m.state, nil
}

// Finish ends finalization: Idle on success, Error when err is non-nil.
func (m *Machine) Finish(err error) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFinalizing {
		return m.state, fmt.Errorf("%w: finish from %s", ErrInvalidTransition, m.state)
	}
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateIdle
	}
	return m.state, nil
}

// Fail aborts a running recording after a capture or encode failure.
func (m *Machine) Fail() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRecording {
		return m.state, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, m.state)
	}
	m.state = StateError
	return m.state, nil
}

// Reset returns Error to Idle so a fresh session can start. It is a no-op in
// Idle.
func (m *Machine) Reset() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateError:
		m.state = StateIdle
	case StateIdle:
	default:
		return m.state, fmt.Errorf("%w: reset from %s", ErrInvalidTransition, m.state)
	}
	return m.state, nil
}
