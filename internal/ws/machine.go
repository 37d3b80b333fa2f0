// Package ws owns the client side of the WebSocket link to the companion
// daemon: one socket at a time, driven through an explicit state machine with
// exponential reconnect backoff and a fire-and-forget heartbeat.
package ws

import (
	"math"
	"time"
)

// State is the connection lifecycle state.
type State string

const (
	// StateDisconnected is the initial state and the result of an explicit
	// Disconnect.
	StateDisconnected State = "disconnected"
	// StateConnecting means a dial is in flight.
	StateConnecting State = "connecting"
	// StateConnected means the socket is open and heartbeating.
	StateConnected State = "connected"
	// StateReconnecting means a backoff timer is pending before the next dial.
	StateReconnecting State = "reconnecting"
	// StateExhausted means the reconnect budget is spent. Only an explicit
	// Connect leaves this state; nothing retries automatically.
	StateExhausted State = "exhausted"
)

// BackoffPolicy parameterizes the reconnect delay schedule.
type BackoffPolicy struct {
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
	MaxAttempts int
}

// Delay returns the backoff before reconnect attempt n (1-based):
// min(Base × Multiplier^(n-1), Cap).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1)))
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	return d
}

// Input is a single stimulus applied to the machine.
type Input int

const (
	// InConnect is an explicit caller request to open the link.
	InConnect Input = iota
	// InOpened reports a successful transport open.
	InOpened
	// InClosed reports a transport close, dial failure, or socket error.
	InClosed
	// InRetryDue reports that the pending backoff timer fired.
	InRetryDue
	// InDisconnect is an explicit caller request to tear the link down.
	InDisconnect
)

// Action tells the run loop what to do after a transition.
type Action int

const (
	// ActNone requires no side effect.
	ActNone Action = iota
	// ActDial starts an asynchronous transport dial.
	ActDial
	// ActScheduleRetry arms a timer for Machine.Delay, after which the loop
	// feeds InRetryDue back in.
	ActScheduleRetry
	// ActTeardown cancels pending timers and closes any open socket.
	ActTeardown
)

// Machine is the pure connection state-transition function. It carries the
// backoff arithmetic but no timers, sockets, or clocks, so the reconnect
// schedule is testable as plain data. The run loop in Conn executes the
// returned Action.
type Machine struct {
	State         State
	Attempts      int           // consecutive failed reconnects since last open
	Delay         time.Duration // backoff delay for the pending retry
	Policy        BackoffPolicy
	AutoReconnect bool
}

// NewMachine returns a machine in StateDisconnected with the base delay armed.
func NewMachine(policy BackoffPolicy, autoReconnect bool) Machine {
	return Machine{
		State:         StateDisconnected,
		Delay:         policy.Base,
		Policy:        policy,
		AutoReconnect: autoReconnect,
	}
}

// Step applies one input and returns the successor machine plus the side
// effect the caller must perform. Inputs that are invalid for the current
// state are ignored (ActNone), never panicked on: a late socket-error from a
// torn-down transport must not corrupt the state.
func (m Machine) Step(in Input) (Machine, Action) {
	switch in {
	case InConnect:
		// Explicit connects are only honored at rest. Exhaustion requires
		// exactly this path to resume.
		if m.State == StateDisconnected || m.State == StateExhausted {
			m.Attempts = 0
			m.Delay = m.Policy.Base
			m.State = StateConnecting
			return m, ActDial
		}
		return m, ActNone

	case InOpened:
		if m.State != StateConnecting {
			return m, ActNone
		}
		m.State = StateConnected
		m.Attempts = 0
		m.Delay = m.Policy.Base
		return m, ActNone

	case InClosed:
		if m.State != StateConnecting && m.State != StateConnected {
			return m, ActNone
		}
		if !m.AutoReconnect {
			m.State = StateDisconnected
			return m, ActTeardown
		}
		if m.Attempts >= m.Policy.MaxAttempts {
			m.State = StateExhausted
			return m, ActTeardown
		}
		m.Attempts++
		m.Delay = m.Policy.Delay(m.Attempts)
		m.State = StateReconnecting
		return m, ActScheduleRetry

	case InRetryDue:
		if m.State != StateReconnecting {
			return m, ActNone
		}
		m.State = StateConnecting
		return m, ActDial

	case InDisconnect:
		// Deliberate cancellation: bypasses backoff entirely.
		m.State = StateDisconnected
		m.Attempts = 0
		m.Delay = m.Policy.Base
		return m, ActTeardown
	}
	return m, ActNone
}
