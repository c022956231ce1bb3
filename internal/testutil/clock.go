// Package testutil provides test helpers shared across packages.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe settable wall clock for TTL and timestamp
// tests. Production code takes a `func() time.Time`; tests pass
// clock.Now and advance it explicitly, so expiry behavior is exercised
// without sleeping.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock frozen at the given instant.
func NewClock(at time.Time) *Clock {
	return &Clock{now: at}
}

// Now returns the current instant. Signature matches time.Now.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute instant.
func (c *Clock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}
