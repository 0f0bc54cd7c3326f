package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestController() (*Controller, *fakeClock) {
	clock := &fakeClock{now: time.Now()}
	return New(WithClock(clock.Now)), clock
}

func TestCheckAndReserve_Cooldown(t *testing.T) {
	t.Parallel()
	c, clock := newTestController()
	d := &registry.Descriptor{Name: "track", Cooldown: 3 * time.Second}

	if got := c.CheckAndReserve("u1", d); !got.Allowed {
		t.Fatalf("first check = %+v, want allowed", got)
	}

	clock.Advance(time.Second)
	got := c.CheckAndReserve("u1", d)
	if got.Allowed || got.RetryAfter <= 0 {
		t.Fatalf("second check = %+v, want denied with retry", got)
	}
	if got.RetryAfter != 2 {
		t.Errorf("RetryAfter = %d, want 2", got.RetryAfter)
	}

	clock.Advance(2 * time.Second)
	if got := c.CheckAndReserve("u1", d); !got.Allowed {
		t.Errorf("check after cooldown = %+v, want allowed", got)
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()
	c, _ := newTestController()
	d := &registry.Descriptor{Name: "track", Cooldown: 3 * time.Second}

	c.CheckAndReserve("u1", d)
	c.CheckAndReserve("u2", d)
	c.Release("u1", d)

	if got := c.CheckAndReserve("u1", d); !got.Allowed {
		t.Errorf("check after release = %+v, want allowed", got)
	}
	if got := c.CheckAndReserve("u2", d); got.Allowed {
		t.Error("release must not affect other principals")
	}
}

func TestCheckAndReserve_RetryAfterRoundsUp(t *testing.T) {
	t.Parallel()
	c, clock := newTestController()
	d := &registry.Descriptor{Name: "search", Cooldown: 3 * time.Second}

	c.CheckAndReserve("u1", d)
	clock.Advance(2900 * time.Millisecond)
	if got := c.CheckAndReserve("u1", d); got.RetryAfter != 1 {
		t.Errorf("RetryAfter = %d, want 1", got.RetryAfter)
	}
}

func TestCheckAndReserve_Isolation(t *testing.T) {
	t.Parallel()
	c, _ := newTestController()
	track := &registry.Descriptor{Name: "track", Cooldown: time.Minute}
	search := &registry.Descriptor{Name: "search", Cooldown: time.Minute}

	c.CheckAndReserve("u1", track)
	if !c.CheckAndReserve("u2", track).Allowed {
		t.Error("other principals must not share a cooldown")
	}
	if !c.CheckAndReserve("u1", search).Allowed {
		t.Error("other commands must not share a cooldown")
	}
}

func TestCheckAndReserve_ZeroCooldown(t *testing.T) {
	t.Parallel()
	c, _ := newTestController()
	d := &registry.Descriptor{Name: "ping"}

	for range 5 {
		if !c.CheckAndReserve("u1", d).Allowed {
			t.Fatal("zero cooldown must always admit")
		}
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, zero cooldown should not store entries", c.Len())
	}
}

func TestCheckAndReserve_ConcurrentReservation(t *testing.T) {
	t.Parallel()
	c, _ := newTestController()
	d := &registry.Descriptor{Name: "checkout", Cooldown: time.Minute}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if c.CheckAndReserve("u1", d).Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()

	if allowed.Load() != 1 {
		t.Errorf("allowed = %d, exactly one concurrent call may reserve", allowed.Load())
	}
}

func TestSweep(t *testing.T) {
	t.Parallel()
	c, clock := newTestController()
	short := &registry.Descriptor{Name: "a", Cooldown: time.Second}
	long := &registry.Descriptor{Name: "b", Cooldown: time.Hour}

	c.CheckAndReserve("u1", short)
	c.CheckAndReserve("u1", long)
	clock.Advance(2 * time.Second)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if c.CheckAndReserve("u1", long).Allowed {
		t.Error("sweep must keep active cooldowns")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
