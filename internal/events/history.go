package events

import "sync"

// History is a bounded, newest-first sequence of envelopes. Prepend inserts
// at the head; once the cap is reached the oldest entry is dropped silently.
// Safe for concurrent use: the dispatcher appends from the socket read loop
// while CLI renderers snapshot.
type History struct {
	mu      sync.Mutex
	cap     int
	entries []Envelope
}

// NewHistory creates an empty history with the given capacity.
func NewHistory(capacity int) *History {
	return &History{cap: capacity}
}

// Prepend inserts e at the head, evicting the oldest entry on overflow.
func (h *History) Prepend(e Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) < h.cap {
		h.entries = append(h.entries, Envelope{})
	}
	copy(h.entries[1:], h.entries)
	h.entries[0] = e
}

// Snapshot returns a copy of the current contents, newest first.
func (h *History) Snapshot() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Envelope, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained envelopes.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
