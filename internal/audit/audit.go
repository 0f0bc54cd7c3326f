// Package audit records every dispatch attempt to the command history
// without blocking the dispatcher.
package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
)

const (
	defaultBufferSize = 512
	writeTimeout      = 5 * time.Second
)

// Record is one dispatch attempt.
type Record struct {
	UserID   string
	ChatID   string
	Command  string
	Args     []string
	Outcome  string
	Duration time.Duration
	At       time.Time
}

// Emitter queues records for a background writer. Emit never blocks; when
// the buffer is full the record is dropped and counted.
type Emitter struct {
	repo    storage.HistoryRepository
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex // Guards ch against send-after-close
	ch     chan Record
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter starts the background writer. m may be nil.
func NewEmitter(repo storage.HistoryRepository, log *logger.Logger, m *metrics.Metrics, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	e := &Emitter{
		repo:    repo,
		logger:  log.WithModule("audit"),
		metrics: m,
		ch:      make(chan Record, bufferSize),
	}
	e.wg.Go(e.run)
	return e
}

func (e *Emitter) run() {
	for rec := range e.ch {
		e.write(rec)
	}
}

func (e *Emitter) write(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := e.repo.SaveCommand(ctx, &storage.CommandRecord{
		UserID:     rec.UserID,
		ChatID:     rec.ChatID,
		Command:    rec.Command,
		Args:       strings.Join(rec.Args, " "),
		Outcome:    rec.Outcome,
		DurationMs: rec.Duration.Milliseconds(),
		CreatedAt:  rec.At,
	})
	if err != nil {
		e.logger.WithError(err).WithField("command", rec.Command).Warnf("Failed to write command history")
	}
}

// Emit queues rec. It returns false when the record was dropped.
func (e *Emitter) Emit(rec Record) bool {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.ch <- rec:
		return true
	default:
		if e.metrics != nil {
			e.metrics.RecordAuditDropped()
		}
		e.logger.WithField("command", rec.Command).Debugf("Audit buffer full, record dropped")
		return false
	}
}

// Close stops accepting records and waits for queued ones to be written,
// up to ctx's deadline.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
