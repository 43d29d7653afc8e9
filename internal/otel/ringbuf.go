package otel

import (
	"strings"
	"sync"
)

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 1024

// RingBuffer is a fixed-size circular buffer of Events, safe for
// concurrent use.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	head  int // next write position
	count int
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push adds an event, overwriting the oldest when full. The Extra map is
// copied so later writes by the caller do not show through.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// each calls fn on every buffered event, oldest first. Caller holds mu.
func (r *RingBuffer) each(fn func(Event)) {
	start := 0
	if r.count == len(r.buf) {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		fn(r.buf[(start+i)%len(r.buf)])
	}
}

// Snapshot returns a copy of all events, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	return r.Filter(nil)
}

// Filter returns the events for which keep returns true, oldest first.
// A nil keep returns everything.
func (r *RingBuffer) Filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	r.each(func(e Event) {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	})
	return out
}

// ByPrefix returns events whose kind starts with prefix, e.g. "fetch.".
func (r *RingBuffer) ByPrefix(prefix string) []Event {
	return r.Filter(func(e Event) bool {
		return strings.HasPrefix(string(e.Kind), prefix)
	})
}

// Last returns the n most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	if n <= 0 {
		return nil
	}
	all := r.Snapshot()
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	r.each(func(e Event) { counts[e.Kind]++ })
	return counts
}
