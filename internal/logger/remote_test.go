package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// recordingHandler keeps what it receives and optionally blocks or fails.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
	ctxErrs []error
	gate    chan struct{}
	err     error
	level   slog.Level
}

func (h *recordingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *recordingHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	return h.err
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, r.Message)
	}
	return out
}

// idleQueue is a remoteQueue with no worker, so its buffer only fills.
func idleQueue(size int) *remoteQueue {
	return &remoteQueue{
		records: make(chan pending, size),
		flush:   time.Second,
		done:    make(chan struct{}),
	}
}

func rec(level slog.Level, msg string) pending {
	return pending{ctx: context.Background(), record: slog.NewRecord(time.Now(), level, msg, 0)}
}

func TestAsyncHandler_ShipsSessionFieldsOnShutdown(t *testing.T) {
	t.Parallel()
	out := &lockedBuffer{}
	h := NewAsyncHandler(slog.NewJSONHandler(out, nil), AsyncOptions{BufferSize: 16})

	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("chat_id", "263771234567@s.whatsapp.net")}))
	for range 5 {
		log.Info("Message dispatched")
	}

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if got := strings.Count(out.String(), `"msg":"Message dispatched"`); got != 5 {
		t.Errorf("expected 5 shipped records, got %d: %s", got, out.String())
	}
	if !strings.Contains(out.String(), `"chat_id":"263771234567@s.whatsapp.net"`) {
		t.Errorf("chat_id lost on the way to the remote sink: %s", out.String())
	}
	if h.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", h.Dropped())
	}
}

func TestRemoteQueue_WarningsDisplaceOldest(t *testing.T) {
	t.Parallel()
	q := idleQueue(2)

	q.push(rec(slog.LevelInfo, "cart updated"))
	q.push(rec(slog.LevelInfo, "search served"))
	q.push(rec(slog.LevelDebug, "cache hit"))
	if got := q.dropped.Load(); got != 1 {
		t.Fatalf("dropped = %d after quiet overflow, want 1", got)
	}

	q.push(rec(slog.LevelError, "backend unavailable"))
	if got := q.dropped.Load(); got != 2 {
		t.Fatalf("dropped = %d after error overflow, want 2", got)
	}

	var kept []string
	for range len(q.records) {
		kept = append(kept, (<-q.records).record.Message)
	}
	if strings.Join(kept, ",") != "search served,backend unavailable" {
		t.Errorf("queued = %v, want the error to replace the oldest record", kept)
	}
}

func TestRemoteQueue_PushAfterStop(t *testing.T) {
	t.Parallel()
	q := newRemoteQueue(AsyncOptions{})
	if err := q.stop(context.Background()); err != nil {
		t.Fatalf("stop() = %v", err)
	}

	q.push(rec(slog.LevelError, "late"))
	if got := q.dropped.Load(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if err := q.stop(context.Background()); err != nil {
		t.Errorf("second stop() = %v, want nil", err)
	}
}

func TestAsyncHandler_ShutdownDeadline(t *testing.T) {
	t.Parallel()
	sink := &recordingHandler{gate: make(chan struct{})}
	h := NewAsyncHandler(sink, AsyncOptions{})
	slog.New(h).Warn("stuck upstream")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() = %v, want deadline exceeded", err)
	}
	close(sink.gate)
}

func TestAsyncHandler_DetachesRequestContext(t *testing.T) {
	t.Parallel()
	sink := &recordingHandler{}
	h := NewAsyncHandler(sink, AsyncOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slog.New(h).InfoContext(ctx, "Webhook accepted")
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ctxErrs) != 1 || sink.ctxErrs[0] != nil {
		t.Errorf("remote sink saw ctx errors %v, want one live context", sink.ctxErrs)
	}
}

func TestAsyncHandler_NilReceiver(t *testing.T) {
	t.Parallel()
	var h *AsyncHandler
	if err := h.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() = %v", err)
	}
	if h.Dropped() != 0 {
		t.Errorf("nil Dropped() = %d", h.Dropped())
	}
}

func TestTeeHandler(t *testing.T) {
	t.Parallel()
	var local bytes.Buffer
	remote := &recordingHandler{level: slog.LevelWarn, err: errors.New("ingest refused")}
	log := slog.New(teeHandler{
		local:  slog.NewJSONHandler(&local, &slog.HandlerOptions{Level: slog.LevelDebug}),
		remote: remote,
	})

	log.Info("Order placed")
	log.Error("Delivery failed")

	if !strings.Contains(local.String(), "Order placed") || !strings.Contains(local.String(), "Delivery failed") {
		t.Errorf("local sink missing records: %s", local.String())
	}
	if got := remote.messages(); len(got) != 1 || got[0] != "Delivery failed" {
		t.Errorf("remote sink got %v, want only the error", got)
	}

	err := teeHandler{local: &recordingHandler{}, remote: remote}.
		Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0))
	if err != nil {
		t.Errorf("remote failure surfaced to caller: %v", err)
	}

	localErr := errors.New("stdout closed")
	err = teeHandler{local: &recordingHandler{err: localErr}, remote: remote}.
		Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "x", 0))
	if !errors.Is(err, localErr) {
		t.Errorf("Handle() = %v, want local error", err)
	}
}
