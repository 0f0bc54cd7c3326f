// Package ratelimit tracks per-sender quotas on the message path: the
// message ceiling as a sliding window and the LLM allowance as a token
// bucket from golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
// At least one of the token bucket or the sliding window must be enabled.
type KeyedConfig struct {
	// Name identifies this limiter for metrics (e.g., "message", "llm")
	Name string

	// Token bucket settings (Burst <= 0 disables the bucket). A zero
	// RefillRate makes Burst a one-off allowance.
	Burst      float64 // Maximum tokens, truncated to a whole number
	RefillRate float64 // Tokens refilled per second

	// Sliding window settings (WindowLimit <= 0 disables the window)
	WindowLimit int
	Window      time.Duration

	// Cleanup settings
	CleanupPeriod time.Duration // How often to clean up inactive entries

	// Optional metrics reporter
	Metrics *metrics.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// KeyedLimiter tracks rate limits per key (e.g., sender phone number).
// It creates separate limiter state for each key and automatically
// cleans up idle entries.
type KeyedLimiter struct {
	mu       sync.RWMutex
	entries  map[string]*keyedEntry
	config   KeyedConfig
	now      func() time.Time
	onDrop   func()          // Optional callback when request is dropped
	onUpdate func(count int) // Optional callback when active count changes
	stopCh   chan struct{}
	stopOnce sync.Once
}

// keyedEntry holds per-key state. mu guards the window and makes the
// two-layer check-then-consume atomic. removed is set under mu when Cleanup
// evicts the entry; holders of a removed entry must look the key up again.
type keyedEntry struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	window  *slidingWindow
	removed bool
}

// NewKeyedLimiter creates a new per-key rate limiter.
//
// Example:
//
//	limiter := NewKeyedLimiter(KeyedConfig{
//	    Name:          "message",
//	    WindowLimit:   5,
//	    Window:        time.Minute,
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer limiter.Stop()
//
//	if limiter.Allow("628123456789") {
//	    // Process message
//	}
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}

	kl := &KeyedLimiter{
		entries: make(map[string]*keyedEntry),
		config:  cfg,
		now:     now,
		stopCh:  make(chan struct{}),
	}

	if cfg.Metrics != nil {
		kl.onDrop = func() {
			cfg.Metrics.RecordRateLimiterDrop(cfg.Name)
		}
		kl.onUpdate = func(count int) {
			cfg.Metrics.SetRateLimiterUsers(cfg.Name, count)
		}
	}

	go kl.cleanupLoop()

	return kl
}

// Allow checks if a request for the given key is allowed.
// Returns true if allowed (quota consumed), false if rate limit exceeded.
// When both layers are configured, both must pass before either is consumed.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	entry := kl.lockedEntry(key)
	defer entry.mu.Unlock()

	now := kl.now()
	// The bucket spends its token only when the window already has room.
	if (entry.window != nil && !entry.window.room(now)) || (entry.bucket != nil && !entry.bucket.AllowN(now, 1)) {
		if kl.onDrop != nil {
			kl.onDrop()
		}
		return false
	}
	if entry.window != nil {
		entry.window.add(now)
	}
	return true
}

// getOrCreateEntry returns the entry for a key, creating it if needed.
func (kl *KeyedLimiter) getOrCreateEntry(key string) *keyedEntry {
	kl.mu.RLock()
	entry, exists := kl.entries[key]
	kl.mu.RUnlock()

	if exists {
		return entry
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists = kl.entries[key]; exists {
		return entry
	}

	entry = &keyedEntry{
		window: newSlidingWindow(kl.config.WindowLimit, kl.config.Window, kl.now()),
	}
	if kl.config.Burst > 0 {
		entry.bucket = rate.NewLimiter(rate.Limit(kl.config.RefillRate), int(kl.config.Burst))
	}
	kl.entries[key] = entry
	return entry
}

// Remaining returns the approximate remaining window quota for a key,
// or -1 when the window layer is disabled.
func (kl *KeyedLimiter) Remaining(key string) int {
	if kl.config.WindowLimit <= 0 || kl.config.Window <= 0 {
		return -1
	}

	kl.mu.RLock()
	entry, exists := kl.entries[key]
	kl.mu.RUnlock()

	if !exists {
		return kl.config.WindowLimit
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.window.remaining(kl.now())
}

// Usage is a read-only view of one key's quota.
type Usage struct {
	Tokens          float64 // Available bucket tokens, -1 when the bucket is disabled
	Burst           float64
	RefillPerSecond float64
	WindowRemaining int // -1 when the window is disabled
	WindowLimit     int
	Window          time.Duration
}

// Usage reports the quota of key without consuming any.
func (kl *KeyedLimiter) Usage(key string) Usage {
	u := Usage{
		Tokens:          -1,
		Burst:           kl.config.Burst,
		RefillPerSecond: kl.config.RefillRate,
		WindowRemaining: -1,
		WindowLimit:     kl.config.WindowLimit,
		Window:          kl.config.Window,
	}

	if kl.config.Burst > 0 {
		u.Tokens = float64(int(kl.config.Burst))
	}
	if kl.config.WindowLimit > 0 {
		u.WindowRemaining = kl.config.WindowLimit
	}

	kl.mu.RLock()
	entry, exists := kl.entries[key]
	kl.mu.RUnlock()
	if !exists {
		return u
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	now := kl.now()
	if entry.bucket != nil {
		u.Tokens = tokensAt(entry.bucket, now)
	}
	if entry.window != nil {
		u.WindowRemaining = entry.window.remaining(now)
	}
	return u
}

// tokensAt reports the tokens left in b. With a zero limit x/time/rate
// spends the burst itself, so Burst is the balance.
func tokensAt(b *rate.Limiter, now time.Time) float64 {
	if b.Limit() == 0 {
		return float64(b.Burst())
	}
	return b.TokensAt(now)
}

// GetActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) GetActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

// Cleanup removes entries whose bucket is full and whose window is empty.
func (kl *KeyedLimiter) Cleanup() int {
	kl.mu.Lock()
	now := kl.now()
	for key, entry := range kl.entries {
		if entry.evictIfIdle(now, kl.config.Burst) {
			delete(kl.entries, key)
		}
	}
	activeCount := len(kl.entries)
	kl.mu.Unlock()

	if kl.onUpdate != nil {
		kl.onUpdate(activeCount)
	}
	return activeCount
}

// evictIfIdle marks the entry removed when its bucket has refilled to burst
// and its window is empty.
func (e *keyedEntry) evictIfIdle(now time.Time, burst float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	full := e.bucket == nil || tokensAt(e.bucket, now) >= float64(int(burst))
	if full && (e.window == nil || e.window.idle(now)) {
		e.removed = true
	}
	return e.removed
}

// cleanupLoop periodically removes inactive entries.
func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.Cleanup()
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}
