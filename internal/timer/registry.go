// Package timer implements the shared stopwatch behind "when timer > n"
// triggers and the "reset timer" block.
package timer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry struct {
	duration time.Duration
	callback func()
	timer    *clock.Timer
	gen      uint64
}

// Registry tracks deferred callbacks measured from one shared reference
// instant. Reset moves the reference and reschedules every pending entry.
type Registry struct {
	clock clock.Clock

	mu      sync.Mutex
	ref     time.Time
	nextID  uint64
	entries map[uint64]*entry
	closed  bool
}

// New returns a registry whose reference is the current instant of clk.
func New(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		clock:   clk,
		ref:     clk.Now(),
		entries: make(map[uint64]*entry),
	}
}

// WhenElapsed schedules cb to run once, d after the reference instant.
// The returned func cancels the entry if it has not fired yet.
func (r *Registry) WhenElapsed(d time.Duration, cb func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	e := &entry{duration: d, callback: cb}
	r.entries[id] = e
	r.schedule(id, e, d-r.clock.Since(r.ref))
	return func() { r.remove(id) }
}

// schedule arms e to fire after delay. Callers hold r.mu.
func (r *Registry) schedule(id uint64, e *entry, delay time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	if delay < 0 {
		delay = 0
	}
	e.timer = r.clock.AfterFunc(delay, func() { r.fire(id, gen) })
}

func (r *Registry) fire(id, gen uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.gen != gen {
		// Replaced by a reset or cancelled while the timer was firing.
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	r.mu.Unlock()
	e.callback()
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.timer.Stop()
		delete(r.entries, id)
	}
}

// Reset moves the reference to now. Each pending entry fires its full
// duration after the new reference.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ref = r.clock.Now()
	for id, e := range r.entries {
		r.schedule(id, e, e.duration)
	}
}

// Elapsed returns the time passed since the reference instant.
func (r *Registry) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Since(r.ref)
}

// Pending returns the number of entries that have not fired.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every pending entry. Later registrations are ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
}
