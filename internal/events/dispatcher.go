package events

import (
	"encoding/json"
	"log"
	"sync"
)

// Handler consumes one envelope. Handlers run synchronously on the
// dispatching goroutine, in arrival order; a panicking handler is isolated
// and never prevents the remaining handlers from running.
type Handler func(Envelope)

// Stats counts dispatcher outcomes since startup.
type Stats struct {
	Dispatched int // envelopes that entered history
	Control    int // hello/pong frames skipped
	Malformed  int // frames that failed to parse
	Unknown    int // parsed frames with an unrecognized type
}

// Dispatcher validates raw frames, maintains the master and per-category
// bounded histories, and fans envelopes out to subscribers.
//
// Envelopes are never deduplicated by id: a frame replayed after a reconnect
// enters history again as if new.
type Dispatcher struct {
	log *log.Logger

	mu         sync.Mutex
	master     *History
	byCategory map[Category]*History
	wildcard   map[int]Handler
	byCatSubs  map[Category]map[int]Handler
	nextSub    int
	stats      Stats
}

// NewDispatcher creates a dispatcher whose histories hold at most capacity
// envelopes each.
func NewDispatcher(capacity int, logger *log.Logger) *Dispatcher {
	byCategory := make(map[Category]*History, len(Categories))
	for _, c := range Categories {
		byCategory[c] = NewHistory(capacity)
	}
	return &Dispatcher{
		log:        logger,
		master:     NewHistory(capacity),
		byCategory: byCategory,
		wildcard:   make(map[int]Handler),
		byCatSubs:  make(map[Category]map[int]Handler),
	}
}

// Dispatch processes one raw inbound frame. Malformed frames, control frames,
// and unrecognized types are dropped without entering history; there is no
// dead-letter queue.
func (d *Dispatcher) Dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		d.count(func(s *Stats) { s.Malformed++ })
		return
	}
	if env.Type.Control() {
		d.count(func(s *Stats) { s.Control++ })
		return
	}
	if !env.Type.Known() {
		d.count(func(s *Stats) { s.Unknown++ })
		if d.log != nil {
			d.log.Printf("events: dropping frame with unknown type %q", env.Type)
		}
		return
	}

	d.mu.Lock()
	d.stats.Dispatched++
	d.master.Prepend(env)
	cats := env.Type.Categories()
	for _, c := range cats {
		d.byCategory[c].Prepend(env)
	}

	handlers := make([]Handler, 0, len(d.wildcard))
	for _, h := range d.wildcard {
		handlers = append(handlers, h)
	}
	for _, c := range cats {
		for _, h := range d.byCatSubs[c] {
			handlers = append(handlers, h)
		}
	}
	d.mu.Unlock()

	for _, h := range handlers {
		d.invoke(h, env)
	}
}

// invoke runs a single handler, absorbing any panic so one misbehaving
// subscriber cannot starve the rest.
func (d *Dispatcher) invoke(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Printf("events: handler panicked on %s: %v", env.Type, r)
		}
	}()
	h(env)
}

// SubscribeAll registers a wildcard handler invoked for every envelope that
// enters history. The returned function unsubscribes it.
func (d *Dispatcher) SubscribeAll(h Handler) (cancel func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.wildcard[id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.wildcard, id)
		d.mu.Unlock()
	}
}

// Subscribe registers a handler for one category. The returned function
// unsubscribes it.
func (d *Dispatcher) Subscribe(c Category, h Handler) (cancel func()) {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	if d.byCatSubs[c] == nil {
		d.byCatSubs[c] = make(map[int]Handler)
	}
	d.byCatSubs[c][id] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.byCatSubs[c], id)
		d.mu.Unlock()
	}
}

// History returns a newest-first snapshot of the master sequence.
func (d *Dispatcher) History() []Envelope {
	return d.master.Snapshot()
}

// CategoryHistory returns a newest-first snapshot of one category sequence.
func (d *Dispatcher) CategoryHistory(c Category) []Envelope {
	h, ok := d.byCategory[c]
	if !ok {
		return nil
	}
	return h.Snapshot()
}

// Stats returns a copy of the running counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Dispatcher) count(update func(*Stats)) {
	d.mu.Lock()
	update(&d.stats)
	d.mu.Unlock()
}
