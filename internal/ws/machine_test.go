package ws

import (
	"testing"
	"time"
)

var testPolicy = BackoffPolicy{
	Base:        1000 * time.Millisecond,
	Multiplier:  2,
	Cap:         30000 * time.Millisecond,
	MaxAttempts: 5,
}

func TestBackoffSchedule(t *testing.T) {
	m := NewMachine(testPolicy, true)

	m, act := m.Step(InConnect)
	if act != ActDial || m.State != StateConnecting {
		t.Fatalf("after connect: state=%s act=%d", m.State, act)
	}

	wantDelays := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}

	var scheduled []time.Duration
	for i := 0; i < len(wantDelays); i++ {
		var a Action
		m, a = m.Step(InClosed)
		if a != ActScheduleRetry {
			t.Fatalf("failure %d: action=%d, want ActScheduleRetry", i+1, a)
		}
		if m.State != StateReconnecting {
			t.Fatalf("failure %d: state=%s", i+1, m.State)
		}
		scheduled = append(scheduled, m.Delay)

		m, a = m.Step(InRetryDue)
		if a != ActDial || m.State != StateConnecting {
			t.Fatalf("retry %d: state=%s act=%d", i+1, m.State, a)
		}
	}

	for i, want := range wantDelays {
		if scheduled[i] != want {
			t.Errorf("delay %d = %v, want %v", i+1, scheduled[i], want)
		}
	}

	// The 6th consecutive failure exhausts the budget: no retry scheduled.
	m, act = m.Step(InClosed)
	if act != ActTeardown || m.State != StateExhausted {
		t.Fatalf("6th failure: state=%s act=%d, want exhausted teardown", m.State, act)
	}

	// Exhaustion is terminal for timer-driven inputs.
	m, act = m.Step(InRetryDue)
	if act != ActNone || m.State != StateExhausted {
		t.Fatalf("retry after exhaustion: state=%s act=%d", m.State, act)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Multiplier: 2, Cap: 30 * time.Second, MaxAttempts: 10}
	if d := p.Delay(6); d != 30*time.Second {
		t.Errorf("Delay(6) = %v, want capped 30s", d)
	}
	if d := p.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v, want base", d)
	}
}

func TestConnectAfterExhaustionResets(t *testing.T) {
	m := NewMachine(testPolicy, true)
	m, _ = m.Step(InConnect)
	for m.State != StateExhausted {
		m, _ = m.Step(InClosed)
		if m.State == StateReconnecting {
			m, _ = m.Step(InRetryDue)
		}
	}

	m, act := m.Step(InConnect)
	if act != ActDial || m.State != StateConnecting {
		t.Fatalf("connect from exhausted: state=%s act=%d", m.State, act)
	}
	if m.Attempts != 0 || m.Delay != testPolicy.Base {
		t.Errorf("attempts=%d delay=%v, want reset", m.Attempts, m.Delay)
	}

	m, _ = m.Step(InOpened)
	if m.State != StateConnected || m.Attempts != 0 {
		t.Errorf("after open: state=%s attempts=%d", m.State, m.Attempts)
	}
}

func TestOpenResetsBackoff(t *testing.T) {
	m := NewMachine(testPolicy, true)
	m, _ = m.Step(InConnect)
	m, _ = m.Step(InClosed) // attempt 1
	m, _ = m.Step(InRetryDue)
	m, _ = m.Step(InClosed) // attempt 2
	m, _ = m.Step(InRetryDue)

	m, _ = m.Step(InOpened)
	if m.Attempts != 0 || m.Delay != testPolicy.Base {
		t.Errorf("open did not reset: attempts=%d delay=%v", m.Attempts, m.Delay)
	}

	// The next failure starts the schedule over at the base delay.
	m, _ = m.Step(InClosed)
	if m.Delay != testPolicy.Base || m.Attempts != 1 {
		t.Errorf("post-open failure: attempts=%d delay=%v", m.Attempts, m.Delay)
	}
}

func TestDisconnectBypassesBackoff(t *testing.T) {
	m := NewMachine(testPolicy, true)
	m, _ = m.Step(InConnect)
	m, _ = m.Step(InClosed)
	if m.State != StateReconnecting {
		t.Fatalf("state=%s, want reconnecting", m.State)
	}

	m, act := m.Step(InDisconnect)
	if act != ActTeardown || m.State != StateDisconnected {
		t.Fatalf("disconnect: state=%s act=%d", m.State, act)
	}
	if m.Attempts != 0 {
		t.Errorf("attempts=%d, want 0", m.Attempts)
	}

	// A stale retry timer firing after teardown is ignored.
	m, act = m.Step(InRetryDue)
	if act != ActNone || m.State != StateDisconnected {
		t.Fatalf("stale retry: state=%s act=%d", m.State, act)
	}
}

func TestConnectIgnoredWhileActive(t *testing.T) {
	m := NewMachine(testPolicy, true)
	m, _ = m.Step(InConnect)
	m, _ = m.Step(InOpened)

	m, act := m.Step(InConnect)
	if act != ActNone || m.State != StateConnected {
		t.Fatalf("connect while connected: state=%s act=%d", m.State, act)
	}
}

func TestAutoReconnectDisabled(t *testing.T) {
	m := NewMachine(testPolicy, false)
	m, _ = m.Step(InConnect)
	m, _ = m.Step(InOpened)

	m, act := m.Step(InClosed)
	if act != ActTeardown || m.State != StateDisconnected {
		t.Fatalf("close without auto-reconnect: state=%s act=%d", m.State, act)
	}
}

func TestLateSocketErrorIgnored(t *testing.T) {
	m := NewMachine(testPolicy, true)
	m, act := m.Step(InClosed)
	if act != ActNone || m.State != StateDisconnected {
		t.Fatalf("closed while disconnected: state=%s act=%d", m.State, act)
	}
}
