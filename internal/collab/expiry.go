package collab

import (
	"sync"
	"time"
)

// Expiry runs onExpire for a key once ttl has passed since its last Touch.
// Each key has its own timer; Touch cancels and reschedules it.
type Expiry[K comparable] struct {
	ttl      time.Duration
	onExpire func(K)

	mu      sync.Mutex
	gen     uint64
	timers  map[K]expiryEntry
	stopped bool
}

type expiryEntry struct {
	timer *time.Timer
	gen   uint64
}

// NewExpiry calls onExpire for each key not touched within ttl.
func NewExpiry[K comparable](ttl time.Duration, onExpire func(K)) *Expiry[K] {
	return &Expiry[K]{
		ttl:      ttl,
		onExpire: onExpire,
		timers:   make(map[K]expiryEntry),
	}
}

// Touch (re)starts the timer for key.
func (e *Expiry[K]) Touch(key K) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	if old, ok := e.timers[key]; ok {
		old.timer.Stop()
	}

	e.gen++
	gen := e.gen
	e.timers[key] = expiryEntry{
		gen:   gen,
		timer: time.AfterFunc(e.ttl, func() { e.fire(key, gen) }),
	}
}

// Cancel stops the timer for key without running onExpire. It reports
// whether a timer was pending.
func (e *Expiry[K]) Cancel(key K) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.timers[key]
	if !ok {
		return false
	}
	ent.timer.Stop()
	delete(e.timers, key)
	return true
}

// Pending returns the number of scheduled keys.
func (e *Expiry[K]) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Reset cancels every timer; the Expiry stays usable.
func (e *Expiry[K]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k, ent := range e.timers {
		ent.timer.Stop()
		delete(e.timers, k)
	}
}

// Stop cancels every timer and ignores later Touch calls.
func (e *Expiry[K]) Stop() {
	e.Reset()

	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

func (e *Expiry[K]) fire(key K, gen uint64) {
	e.mu.Lock()
	ent, ok := e.timers[key]
	// A timer that lost the race with Touch or Cancel must not fire.
	if !ok || ent.gen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.timers, key)
	e.mu.Unlock()

	e.onExpire(key)
}
