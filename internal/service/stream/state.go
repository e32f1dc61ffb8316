// Package stream owns the per-source connection to the speech service: the
// connect/retry state machine, result filtering and speaker attribution.
package stream

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a streaming session.
type State int

const (
	// StateIdle - created, no connect attempted yet.
	StateIdle State = iota
	// StateConnecting - connect attempts in progress.
	StateConnecting
	// StateConnected - connection open, results streaming.
	StateConnected
	// StateClosed - terminal, reached from any state.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed  = errors.New("streaming session is closed")
	ErrAlreadyStarted = errors.New("streaming session already started")
	ErrNotConnecting  = errors.New("streaming session is not connecting")
	ErrNotConnected   = errors.New("streaming session is not connected")
	ErrCaptureEnded   = errors.New("capture source ended")
)

// Lifecycle manages the state machine for one streaming session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → CONNECTING → CONNECTED → CLOSED
//	  │         │
//	  └─────────┴── Close() ──→ CLOSED
//
// A session connects once. Retries stay inside CONNECTING; a session that
// drops after CONNECTED is closed, never reconnected.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true once the session reached CLOSED.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateClosed
}

// BeginConnect transitions IDLE → CONNECTING.
func (l *Lifecycle) BeginConnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateIdle:
		l.state = StateConnecting
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrAlreadyStarted
	}
}

// MarkConnected transitions CONNECTING → CONNECTED.
func (l *Lifecycle) MarkConnected() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateConnecting:
		l.state = StateConnected
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotConnecting
	}
}

// Close transitions to CLOSED from any state. Returns false if already closed.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return false
	}
	l.state = StateClosed
	return true
}
