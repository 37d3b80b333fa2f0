package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConnected is returned by Send when the machine is in any state other
// than StateConnected.
var ErrNotConnected = errors.New("ws: not connected")

// ErrStopped is returned when the connection loop is not running.
var ErrStopped = errors.New("ws: connection loop stopped")

// Frame is the outbound message shape.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	TS      int64  `json:"ts"`
}

// Options holds everything a Conn needs from the caller.
type Options struct {
	// URL is the companion base URL; http/https schemes are rewritten to
	// the /ws event endpoint.
	URL               string
	Dialer            Dialer
	Policy            BackoffPolicy
	AutoReconnect     bool
	HeartbeatInterval time.Duration

	// OnMessage receives every inbound text frame, invoked from the socket
	// read goroutine in arrival order. Typically the event dispatcher.
	OnMessage func(raw []byte)
	// OnState is invoked from the run loop on every state transition.
	OnState func(old, new State)

	Logger *log.Logger
}

// Stats is a point-in-time snapshot of connection counters.
type Stats struct {
	Attempts        int           // consecutive failed reconnects
	CurrentBackoff  time.Duration // delay of the pending/most recent retry
	LastConnectedAt time.Time     // zero until the first successful open
	PingsSent       int
}

// Conn manages one WebSocket connection to the companion daemon. All state
// lives on the Run goroutine; the exported methods communicate with it
// through a command channel, so transitions are strictly ordered by the loop
// and there is no shared mutable state to race on.
//
// Connection failures are never surfaced as errors from Run: they feed the
// state machine and show up as OnState notifications, with StateExhausted as
// the terminal outcome once the reconnect budget is spent.
type Conn struct {
	opts  Options
	wsURL string
	log   *log.Logger

	commands chan command
	quit     chan struct{}
	started  atomic.Bool

	state atomic.Value // State

	statsMu sync.Mutex
	stats   Stats
}

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdSend
)

type command struct {
	kind  cmdKind
	frame []byte
	reply chan error
}

type dialResult struct {
	gen       int
	transport Transport
	err       error
}

type sockEvent struct {
	gen int
	err error
}

// New validates the options and returns a Conn ready for Run. Call Run in a
// goroutine, then drive it with Connect/Disconnect/Send.
func New(opts Options) (*Conn, error) {
	wsURL, err := EndpointURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("ws: bad endpoint: %w", err)
	}
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}

	c := &Conn{
		opts:     opts,
		wsURL:    wsURL,
		log:      opts.Logger,
		commands: make(chan command),
		quit:     make(chan struct{}),
	}
	c.state.Store(StateDisconnected)
	return c, nil
}

// State returns the current connection state.
func (c *Conn) State() State {
	return c.state.Load().(State)
}

// Stats returns a snapshot of the connection counters.
func (c *Conn) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Connect asks the loop to open the link. Valid from StateDisconnected and
// StateExhausted; in any other state it is a no-op.
func (c *Conn) Connect() error {
	return c.submit(command{kind: cmdConnect, reply: make(chan error, 1)})
}

// Disconnect cancels any pending reconnect timer and heartbeat, closes the
// socket if open, and settles in StateDisconnected immediately. This is the
// deliberate cancellation path, distinct from error-driven reconnection.
func (c *Conn) Disconnect() error {
	return c.submit(command{kind: cmdDisconnect, reply: make(chan error, 1)})
}

// Send marshals and writes an outbound frame. It fails with ErrNotConnected
// unless the state is StateConnected.
func (c *Conn) Send(msgType string, payload any) error {
	b, err := json.Marshal(Frame{Type: msgType, Payload: payload, TS: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("ws: marshal frame: %w", err)
	}
	return c.submit(command{kind: cmdSend, frame: b, reply: make(chan error, 1)})
}

func (c *Conn) submit(cmd command) error {
	select {
	case c.commands <- cmd:
	case <-c.quit:
		return ErrStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.quit:
		return ErrStopped
	}
}

// Run owns the connection until ctx is cancelled. It is the only goroutine
// that touches the machine, the transport, and the timers.
func (c *Conn) Run(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		panic("ws: Conn.Run called twice")
	}
	defer close(c.quit)

	m := NewMachine(c.opts.Policy, c.opts.AutoReconnect)

	var (
		transport  Transport
		gen        int
		dialC      = make(chan dialResult, 4)
		sockC      = make(chan sockEvent, 4)
		retryTimer *time.Timer
		retryC     <-chan time.Time
		heartbeat  *time.Ticker
		hbC        <-chan time.Time
	)

	stopRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer = nil
			retryC = nil
		}
	}
	stopHeartbeat := func() {
		if heartbeat != nil {
			heartbeat.Stop()
			heartbeat = nil
			hbC = nil
		}
	}
	closeTransport := func() {
		if transport != nil {
			_ = transport.Close()
			transport = nil
		}
		stopHeartbeat()
		gen++ // invalidate in-flight dial/read results
	}

	setState := func(next Machine) {
		old := m.State
		m = next
		c.state.Store(m.State)
		c.statsMu.Lock()
		c.stats.Attempts = m.Attempts
		c.stats.CurrentBackoff = m.Delay
		c.statsMu.Unlock()
		if old != m.State {
			if c.log != nil {
				c.log.Printf("ws: %s -> %s", old, m.State)
			}
			if c.opts.OnState != nil {
				c.opts.OnState(old, m.State)
			}
		}
	}

	startDial := func() {
		gen++
		dialGen := gen
		go func() {
			t, err := c.opts.Dialer.DialContext(ctx, c.wsURL)
			dialC <- dialResult{gen: dialGen, transport: t, err: err}
		}()
	}

	startRead := func(t Transport) {
		readGen := gen
		go func() {
			for {
				data, err := t.ReadMessage()
				if err != nil {
					sockC <- sockEvent{gen: readGen, err: err}
					return
				}
				if c.opts.OnMessage != nil {
					c.opts.OnMessage(data)
				}
			}
		}()
	}

	apply := func(act Action) {
		switch act {
		case ActDial:
			startDial()
		case ActScheduleRetry:
			stopRetry()
			retryTimer = time.NewTimer(m.Delay)
			retryC = retryTimer.C
			if c.log != nil {
				c.log.Printf("ws: reconnect %d/%d in %s", m.Attempts, m.Policy.MaxAttempts, m.Delay)
			}
		case ActTeardown:
			stopRetry()
			closeTransport()
		}
	}

	// socketFailed funnels every failure flavor (dial error, read error,
	// write error) through the same close-then-step path.
	socketFailed := func(err error) {
		if c.log != nil && err != nil {
			c.log.Printf("ws: socket failure: %v", err)
		}
		closeTransport()
		next, act := m.Step(InClosed)
		setState(next)
		apply(act)
	}

	writeFrame := func(frame []byte) error {
		err := transport.WriteMessage(frame)
		if err != nil {
			socketFailed(err)
		}
		return err
	}

	for {
		select {
		case <-ctx.Done():
			stopRetry()
			closeTransport()
			setState(Machine{State: StateDisconnected, Delay: m.Policy.Base, Policy: m.Policy, AutoReconnect: m.AutoReconnect})
			return

		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdConnect:
				next, act := m.Step(InConnect)
				setState(next)
				apply(act)
				cmd.reply <- nil

			case cmdDisconnect:
				next, act := m.Step(InDisconnect)
				setState(next)
				apply(act)
				cmd.reply <- nil

			case cmdSend:
				if m.State != StateConnected || transport == nil {
					cmd.reply <- ErrNotConnected
					break
				}
				cmd.reply <- writeFrame(cmd.frame)
			}

		case res := <-dialC:
			if res.gen != gen {
				// A Disconnect raced the dial; drop the stale socket.
				if res.transport != nil {
					_ = res.transport.Close()
				}
				break
			}
			if res.err != nil {
				socketFailed(res.err)
				break
			}
			transport = res.transport
			next, _ := m.Step(InOpened)
			setState(next)
			c.statsMu.Lock()
			c.stats.LastConnectedAt = time.Now()
			c.statsMu.Unlock()
			startRead(transport)
			heartbeat = time.NewTicker(c.opts.HeartbeatInterval)
			hbC = heartbeat.C

		case ev := <-sockC:
			if ev.gen != gen {
				break
			}
			socketFailed(ev.err)

		case <-retryC:
			retryTimer = nil
			retryC = nil
			next, act := m.Step(InRetryDue)
			setState(next)
			apply(act)

		case <-hbC:
			if m.State != StateConnected || transport == nil {
				break
			}
			ping, _ := json.Marshal(Frame{Type: "ping", TS: time.Now().UnixMilli()})
			if writeFrame(ping) == nil {
				c.statsMu.Lock()
				c.stats.PingsSent++
				c.statsMu.Unlock()
			}
		}
	}
}
