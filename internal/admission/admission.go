// Package admission enforces per-principal command cooldowns.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter int // Whole seconds until the command is allowed again, rounded up
}

type key struct {
	command   string
	principal string
}

// Controller reserves cooldown slots per (command, principal) pair.
type Controller struct {
	mu          sync.Mutex
	nextAllowed map[key]time.Time
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the clock. Returned times should carry a monotonic
// reading, as time.Now does.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New creates an empty controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		nextAllowed: make(map[key]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAndReserve admits the command when its cooldown has elapsed and, in
// the same critical section, reserves the next slot. Commands without a
// cooldown are always admitted and leave no state behind.
func (c *Controller) CheckAndReserve(principalID string, d *registry.Descriptor) Decision {
	if d == nil || d.Cooldown <= 0 {
		return Decision{Allowed: true}
	}

	k := key{command: d.Name, principal: principalID}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if next, ok := c.nextAllowed[k]; ok && now.Before(next) {
		return Decision{RetryAfter: ceilSeconds(next.Sub(now))}
	}
	c.nextAllowed[k] = now.Add(d.Cooldown)
	return Decision{Allowed: true}
}

// Release drops the reservation principalID holds on d, so a call that
// never ran (a usage error) does not start the cooldown.
func (c *Controller) Release(principalID string, d *registry.Descriptor) {
	if d == nil || d.Cooldown <= 0 {
		return
	}
	c.mu.Lock()
	delete(c.nextAllowed, key{command: d.Name, principal: principalID})
	c.mu.Unlock()
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return max(secs, 1)
}

// Sweep removes entries whose cooldown has passed and returns how many were
// removed.
func (c *Controller) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, next := range c.nextAllowed {
		if !now.Before(next) {
			delete(c.nextAllowed, k)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of tracked entries.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nextAllowed)
}
