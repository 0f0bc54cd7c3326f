package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRemoteBuffer = 1024
	defaultRemoteFlush  = 5 * time.Second

	// Records at this level or above may displace a queued record when the
	// remote buffer is full.
	evictLevel = slog.LevelWarn
)

// AsyncOptions tunes the queue in front of the remote sink.
type AsyncOptions struct {
	BufferSize   int
	FlushTimeout time.Duration // Shutdown bound when ctx has no deadline
}

type pending struct {
	ctx     context.Context
	record  slog.Record
	handler slog.Handler
}

// remoteQueue is shared by an AsyncHandler and every handler derived from it.
type remoteQueue struct {
	mu      sync.RWMutex
	stopped bool
	records chan pending
	flush   time.Duration
	dropped atomic.Uint64
	done    chan struct{}
}

func newRemoteQueue(opts AsyncOptions) *remoteQueue {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultRemoteBuffer
	}
	flush := opts.FlushTimeout
	if flush <= 0 {
		flush = defaultRemoteFlush
	}
	q := &remoteQueue{
		records: make(chan pending, size),
		flush:   flush,
		done:    make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *remoteQueue) drain() {
	defer close(q.done)
	for p := range q.records {
		_ = p.handler.Handle(p.ctx, p.record)
	}
}

// push never blocks. With a full buffer a warning or error displaces the
// oldest queued record and anything quieter is dropped.
func (q *remoteQueue) push(p pending) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		q.dropped.Add(1)
		return
	}

	select {
	case q.records <- p:
		return
	default:
	}
	if p.record.Level >= evictLevel {
		select {
		case <-q.records:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.records <- p:
			return
		default:
		}
	}
	q.dropped.Add(1)
}

func (q *remoteQueue) stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.records)
	q.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.flush)
		defer cancel()
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush remote logs: %w", ctx.Err())
	}
}

// AsyncHandler queues records for a slow sink such as Better Stack so that
// the message path never waits on log shipping.
type AsyncHandler struct {
	queue *remoteQueue
	next  slog.Handler
}

// NewAsyncHandler starts the queue worker for next.
func NewAsyncHandler(next slog.Handler, opts AsyncOptions) *AsyncHandler {
	return &AsyncHandler{queue: newRemoteQueue(opts), next: next}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle queues a copy of r. The record outlives the request, so its
// context is detached from cancellation.
func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	h.queue.push(pending{ctx: context.WithoutCancel(ctx), record: r.Clone(), handler: h.next})
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{queue: h.queue, next: h.next.WithAttrs(attrs)}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{queue: h.queue, next: h.next.WithGroup(name)}
}

// Dropped counts records lost to a full buffer or a stopped queue.
func (h *AsyncHandler) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.queue.dropped.Load()
}

// Shutdown stops accepting records and waits for the queue to drain.
func (h *AsyncHandler) Shutdown(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.queue.stop(ctx)
}

// teeHandler writes every record to stdout and forwards a copy to the remote
// sink. Remote failures are never reported to the caller.
type teeHandler struct {
	local  slog.Handler
	remote slog.Handler
}

func (h teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.local.Enabled(ctx, level) || h.remote.Enabled(ctx, level)
}

func (h teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.remote.Enabled(ctx, r.Level) {
		_ = h.remote.Handle(ctx, r.Clone())
	}
	if !h.local.Enabled(ctx, r.Level) {
		return nil
	}
	return h.local.Handle(ctx, r)
}

func (h teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{local: h.local.WithAttrs(attrs), remote: h.remote.WithAttrs(attrs)}
}

func (h teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{local: h.local.WithGroup(name), remote: h.remote.WithGroup(name)}
}
