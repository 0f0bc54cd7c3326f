// Package retryqueue holds outbound text messages whose send failed and
// retries them on a fixed interval with a bounded number of attempts.
package retryqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
)

const (
	// DefaultMaxAttempts is the number of failed drains after which an item
	// is dropped.
	DefaultMaxAttempts = 3
	// DefaultCapacity bounds the number of queued items.
	DefaultCapacity = 1000
)

// Item is a fully rendered text message waiting to be resent.
type Item struct {
	ID        string
	Target    string
	Text      string
	Attempts  int
	CreatedAt time.Time
}

// TextSender sends plain text. It is satisfied by the chat transport.
type TextSender interface {
	SendText(ctx context.Context, target, text string) error
}

// DrainStats summarizes one drain cycle.
type DrainStats struct {
	Sent    int
	Failed  int // Failed and kept for the next cycle
	Dropped int // Failed for the last time
}

// Queue is a bounded in-memory retry queue.
type Queue struct {
	mu          sync.Mutex
	items       []Item
	inFlight    int // Items taken by a running drain; they count toward capacity
	closed      bool
	capacity    int
	maxAttempts int
	sendTimeout time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// Config configures a Queue.
type Config struct {
	Capacity    int
	MaxAttempts int
	SendTimeout time.Duration // Per-item send timeout during a drain
}

// New creates a queue. m may be nil.
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Queue{
		capacity:    cfg.Capacity,
		maxAttempts: cfg.MaxAttempts,
		sendTimeout: cfg.SendTimeout,
		logger:      log.WithModule("retry_queue"),
		metrics:     m,
	}
}

// Enqueue adds item. ID and CreatedAt are filled in when empty. It fails
// with ErrQueueUnavailable when the queue is closed or full.
func (q *Queue) Enqueue(item Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("%w: closed", domerrors.ErrQueueUnavailable)
	}
	if len(q.items)+q.inFlight >= q.capacity {
		return fmt.Errorf("%w: full (%d items)", domerrors.ErrQueueUnavailable, q.capacity)
	}
	q.items = append(q.items, item)
	q.reportDepth(len(q.items))
	return nil
}

// Drain tries every item present when the drain starts, once. Items
// enqueued during the drain wait for the next cycle. Successful items are
// removed; failed ones count an attempt and are dropped when they reach the
// attempt limit. Survivors of a drain that overlaps Close are dropped.
func (q *Queue) Drain(ctx context.Context, sender TextSender) DrainStats {
	q.mu.Lock()
	snapshot := q.items
	q.items = nil
	q.inFlight += len(snapshot)
	q.mu.Unlock()

	var (
		stats     DrainStats
		survivors []Item
	)
	for i, item := range snapshot {
		if ctx.Err() != nil {
			survivors = append(survivors, snapshot[i:]...)
			break
		}

		err := q.send(ctx, sender, item)
		if err == nil {
			stats.Sent++
			q.recordAttempt("sent")
			continue
		}

		item.Attempts++
		if item.Attempts >= q.maxAttempts {
			stats.Dropped++
			q.recordAttempt("dropped")
			if q.metrics != nil {
				q.metrics.RecordRetryDropped()
			}
			q.logger.WithError(err).WithFields(map[string]any{
				"item_id":  item.ID,
				"target":   item.Target,
				"attempts": item.Attempts,
			}).Errorf("Message permanently dropped after %d attempts", item.Attempts)
			continue
		}
		stats.Failed++
		q.recordAttempt("failed")
		survivors = append(survivors, item)
	}

	q.mu.Lock()
	q.inFlight -= len(snapshot)
	closed := q.closed
	if !closed {
		// Survivors go ahead of anything enqueued during the drain
		q.items = append(survivors, q.items...)
	}
	depth := len(q.items)
	q.mu.Unlock()
	q.reportDepth(depth)

	if closed && len(survivors) > 0 {
		stats.Dropped += len(survivors)
		stats.Failed = 0
		if q.metrics != nil {
			for range survivors {
				q.metrics.RecordRetryDropped()
			}
		}
		q.logger.WithField("count", len(survivors)).Warnf("Retry queue closed during drain, dropping survivors")
	}

	if stats != (DrainStats{}) {
		q.logger.WithFields(map[string]any{
			"sent":    stats.Sent,
			"failed":  stats.Failed,
			"dropped": stats.Dropped,
			"depth":   depth,
		}).Debugf("Retry queue drained")
	}
	return stats
}

func (q *Queue) send(ctx context.Context, sender TextSender, item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: sender panic: %v", domerrors.ErrTransportRejected, r)
		}
	}()
	if q.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.sendTimeout)
		defer cancel()
	}
	return sender.SendText(ctx, item.Target, item.Text)
}

// Run drains on every tick until ctx is done.
func (q *Queue) Run(ctx context.Context, sender TextSender, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if q.Len() > 0 {
				q.Drain(ctx, sender)
			}
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued items.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Close rejects further enqueues and returns the items still pending.
func (q *Queue) Close() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	pending := q.items
	q.items = nil
	q.reportDepth(0)
	return pending
}

func (q *Queue) reportDepth(depth int) {
	if q.metrics != nil {
		q.metrics.SetRetryQueueDepth(depth)
	}
}

func (q *Queue) recordAttempt(result string) {
	if q.metrics != nil {
		q.metrics.RecordRetryAttempt(result)
	}
}
