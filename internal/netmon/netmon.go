// Package netmon reports connectivity to the companion daemon. The upload
// queue consults the current snapshot before attempting a direct upload and
// subscribes to transitions so it can drain its retry backlog the moment the
// network comes back.
package netmon

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Observer is the connectivity port consumed by the upload queue. Change
// callbacks are edge-triggered: they fire on transitions only, never on
// repeated identical probe results.
type Observer interface {
	// IsConnected reports the current connectivity snapshot.
	IsConnected(ctx context.Context) bool
	// OnChange registers cb for connectivity transitions and returns a
	// function that unregisters it.
	OnChange(cb func(connected bool)) (cancel func())
}

// Probe polls the companion daemon's health endpoint on an interval and
// notifies subscribers of transitions. It starts pessimistic: subscribers
// hear nothing until the first probe completes.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	log      *log.Logger

	mu        sync.Mutex
	connected bool
	probed    bool // at least one probe has completed
	nextSub   int
	subs      map[int]func(bool)
}

// NewProbe builds a probe against baseURL's /healthz endpoint. The timeout
// bounds each individual probe request.
func NewProbe(baseURL string, interval, timeout time.Duration, logger *log.Logger) *Probe {
	return &Probe{
		url:      strings.TrimRight(baseURL, "/") + "/healthz",
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		log:      logger,
		subs:     make(map[int]func(bool)),
	}
}

// Run probes immediately and then on the configured interval until ctx is
// cancelled.
func (p *Probe) Run(ctx context.Context) {
	p.probeOnce(ctx)

	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.probeOnce(ctx)
		}
	}
}

// IsConnected returns the latest probe result. Before the first probe
// completes it performs a synchronous check so early callers get a real
// answer instead of the zero value.
func (p *Probe) IsConnected(ctx context.Context) bool {
	p.mu.Lock()
	probed := p.probed
	connected := p.connected
	p.mu.Unlock()

	if probed {
		return connected
	}
	return p.probeOnce(ctx)
}

// OnChange registers a transition callback. Callbacks run on the probe
// goroutine; slow subscribers delay subsequent probes.
func (p *Probe) OnChange(cb func(bool)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = cb
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Probe) probeOnce(ctx context.Context) bool {
	connected := p.check(ctx)

	p.mu.Lock()
	changed := !p.probed || connected != p.connected
	p.probed = true
	p.connected = connected

	var cbs []func(bool)
	if changed {
		cbs = make([]func(bool), 0, len(p.subs))
		for _, cb := range p.subs {
			cbs = append(cbs, cb)
		}
	}
	p.mu.Unlock()

	if changed && p.log != nil {
		if connected {
			p.log.Printf("netmon: companion reachable")
		} else {
			p.log.Printf("netmon: companion unreachable")
		}
	}
	for _, cb := range cbs {
		cb(connected)
	}
	return connected
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Static is a fixed-answer Observer for tests and one-shot CLI commands
// where no background probing is wanted.
type Static struct {
	Connected bool
}

func (s Static) IsConnected(context.Context) bool { return s.Connected }
func (s Static) OnChange(func(bool)) func()       { return func() {} }
