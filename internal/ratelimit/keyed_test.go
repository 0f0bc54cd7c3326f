package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockMetrics creates a test Metrics instance
func mockMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func TestKeyedLimiter_MessageCeiling(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	m := mockMetrics()
	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "message",
		WindowLimit:   5,
		Window:        time.Minute,
		CleanupPeriod: time.Hour,
		Metrics:       m,
		Now:           clock.Now,
	})
	defer kl.Stop()

	for i := range 5 {
		if !kl.Allow("628111") {
			t.Fatalf("message %d rejected", i+1)
		}
	}
	if kl.Allow("628111") {
		t.Error("sixth message in a minute must be rejected")
	}
	if !kl.Allow("628222") {
		t.Error("other principals are limited independently")
	}
	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("message")); got != 1 {
		t.Errorf("dropped metric = %v, want 1", got)
	}

	clock.Advance(2 * time.Minute)
	if !kl.Allow("628111") {
		t.Error("ceiling must reset after the window passes")
	}
}

func TestKeyedLimiter_EmptyKeyBypasses(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "message", WindowLimit: 1, Window: time.Minute})
	defer kl.Stop()

	for range 3 {
		if !kl.Allow("") {
			t.Fatal("empty key must bypass the limiter")
		}
	}
	if kl.GetActiveCount() != 0 {
		t.Error("empty key must not create entries")
	}
}

func TestKeyedLimiter_BothLayersMustPass(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	kl := NewKeyedLimiter(KeyedConfig{
		Name:        "llm",
		Burst:       2,
		RefillRate:  0,
		WindowLimit: 10,
		Window:      time.Hour,
		Now:         clock.Now,
	})
	defer kl.Stop()

	kl.Allow("u")
	kl.Allow("u")
	if kl.Allow("u") {
		t.Fatal("bucket exhausted, request must be denied")
	}
	// The rejected request must not have consumed window quota.
	if got := kl.Remaining("u"); got != 8 {
		t.Errorf("Remaining() = %d, want 8", got)
	}
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	m := mockMetrics()
	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "message",
		WindowLimit:   5,
		Window:        time.Minute,
		CleanupPeriod: time.Hour,
		Metrics:       m,
		Now:           clock.Now,
	})
	defer kl.Stop()

	kl.Allow("a")
	kl.Allow("b")
	if got := kl.Cleanup(); got != 2 {
		t.Errorf("active entries right after use = %d, want 2", got)
	}

	clock.Advance(3 * time.Minute)
	if got := kl.Cleanup(); got != 0 {
		t.Errorf("active entries after idle = %d, want 0", got)
	}
	if got := testutil.ToFloat64(m.RateLimiterUsers.WithLabelValues("message")); got != 0 {
		t.Errorf("users gauge = %v, want 0", got)
	}
}

func TestKeyedLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "message", WindowLimit: 5, Window: time.Hour})
	defer kl.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := map[string]int{}
	for i := range 100 {
		key := fmt.Sprintf("user-%d", i%4)
		wg.Go(func() {
			if kl.Allow(key) {
				mu.Lock()
				allowed[key]++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	for key, n := range allowed {
		if n != 5 {
			t.Errorf("%s allowed %d times, want 5", key, n)
		}
	}
}

func TestKeyedLimiter_CleanupDuringAllow(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "message", WindowLimit: 5, Window: time.Hour, CleanupPeriod: time.Hour})
	defer kl.Stop()

	stale := kl.getOrCreateEntry("a")
	kl.Cleanup()
	if !stale.removed {
		t.Fatal("idle entry not marked removed")
	}
	if !kl.Allow("a") {
		t.Fatal("Allow() after eviction = false")
	}
	if got := kl.Remaining("a"); got != 4 {
		t.Errorf("Remaining() = %d, want 4: quota must land on the live entry", got)
	}

	stop := make(chan struct{})
	var sweeper sync.WaitGroup
	sweeper.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
				kl.Cleanup()
			}
		}
	})

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range 50 {
		wg.Go(func() {
			if kl.Allow("b") {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	close(stop)
	sweeper.Wait()

	if got := allowed.Load(); got != 5 {
		t.Errorf("allowed %d times under concurrent cleanup, want 5", got)
	}
}

func TestKeyedLimiter_StopIdempotent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "message", WindowLimit: 1, Window: time.Minute})
	kl.Stop()
	kl.Stop()
}

func TestKeyedLimiter_Usage(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	window := NewKeyedLimiter(KeyedConfig{Name: "message", WindowLimit: 5, Window: time.Minute, Now: clock.Now})
	defer window.Stop()
	bucket := NewKeyedLimiter(KeyedConfig{Name: "llm", Burst: 3, RefillRate: 1.0 / 3600, Now: clock.Now})
	defer bucket.Stop()

	if u := window.Usage("628111"); u.WindowRemaining != 5 || u.Tokens != -1 {
		t.Fatalf("fresh window usage = %+v", u)
	}
	window.Allow("628111")
	window.Allow("628111")
	if u := window.Usage("628111"); u.WindowRemaining != 3 {
		t.Errorf("WindowRemaining = %d, want 3", u.WindowRemaining)
	}
	if window.GetActiveCount() != 1 {
		t.Error("Usage must not create entries")
	}

	bucket.Allow("628111")
	u := bucket.Usage("628111")
	if u.WindowRemaining != -1 || u.Burst != 3 {
		t.Errorf("bucket usage = %+v", u)
	}
	if u.Tokens < 1.99 || u.Tokens > 2.01 {
		t.Errorf("Tokens = %v, want 2", u.Tokens)
	}
}

func TestKeyedLimiter_BucketRefill(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	kl := NewKeyedLimiter(KeyedConfig{Name: "llm", Burst: 2, RefillRate: 1, CleanupPeriod: time.Hour, Now: clock.Now})
	defer kl.Stop()

	if !kl.Allow("628111") || !kl.Allow("628111") {
		t.Fatal("burst of 2 should be allowed")
	}
	if kl.Allow("628111") {
		t.Fatal("third question should be denied")
	}

	clock.Advance(time.Second)
	if !kl.Allow("628111") {
		t.Error("one token should refill after one second")
	}
	if kl.Allow("628111") {
		t.Error("only one token should have refilled")
	}
	if got := kl.Cleanup(); got != 1 {
		t.Errorf("Cleanup() kept %d entries, want the drained bucket", got)
	}

	clock.Advance(time.Hour)
	if u := kl.Usage("628111"); u.Tokens != 2 {
		t.Errorf("Tokens = %v after idling, want capped at 2", u.Tokens)
	}
	if got := kl.Cleanup(); got != 0 {
		t.Errorf("Cleanup() kept %d entries, want a refilled bucket evicted", got)
	}
}

func TestKeyedLimiter_OneOffAllowance(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	kl := NewKeyedLimiter(KeyedConfig{Name: "llm", Burst: 1, CleanupPeriod: time.Hour, Now: clock.Now})
	defer kl.Stop()

	if !kl.Allow("628111") {
		t.Fatal("allowance of 1 should be spendable")
	}
	clock.Advance(24 * time.Hour)
	if kl.Allow("628111") {
		t.Error("a zero refill rate never restores tokens")
	}
	if got := kl.Cleanup(); got != 1 {
		t.Error("a spent allowance must not be evicted and reset")
	}
}
