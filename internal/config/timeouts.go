// Package config provides centralized timeout constants for the application.
//
// These values are tuned for:
//   - WhatsApp multi-device sessions (sends are acknowledged by the server)
//   - The backend REST API (retried with exponential backoff)
//   - SQLite performance characteristics (WAL mode, busy timeout)
package config

import "time"

// HTTP server timeouts for health, metrics and backend webhooks.
const (
	// HTTPRead is the server read timeout. Backend webhooks are small JSON bodies.
	HTTPRead = 10 * time.Second

	// HTTPWrite is the server write timeout.
	HTTPWrite = 30 * time.Second

	// HTTPIdle is the idle timeout for keep-alive connections.
	HTTPIdle = 120 * time.Second
)

// Command pipeline timeouts
const (
	// CommandHandling bounds a single handler invocation, including backend
	// retries (3 attempts at 10s plus 1s + 2s of backoff stays below it).
	CommandHandling = 45 * time.Second

	// BackendRequest is the timeout for a single backend HTTP attempt.
	BackendRequest = 10 * time.Second

	// BackendRetryInitial is the first backoff delay: 1s -> 2s -> 4s.
	BackendRetryInitial = 1 * time.Second

	// BackendRetryMax caps a single backoff delay.
	BackendRetryMax = 8 * time.Second
)

// Delivery timeouts
const (
	// TransportSend bounds one WhatsApp send, interactive or text.
	TransportSend = 20 * time.Second

	// RetryQueueInterval is how often the retry queue is drained.
	RetryQueueInterval = 5 * time.Second

	// SelectionTTL is how long numbered fallback options stay resolvable.
	SelectionTTL = 10 * time.Minute
)

// Background job intervals
const (
	// CooldownSweep evicts expired cooldown reservations.
	CooldownSweep = 5 * time.Minute

	// StorageCleanup purges old command history and stale role cache rows.
	StorageCleanup = 1 * time.Hour

	// ConversationIdle stops a per-chat worker after this much inactivity.
	ConversationIdle = 2 * time.Minute
)
