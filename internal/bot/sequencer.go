package bot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// sequencerBuffer is the per-conversation backlog. Messages beyond it are
// dropped; a human cannot type that fast.
const sequencerBuffer = 32

// maxConversations bounds concurrently running conversation workers.
const maxConversations = 512

// HandleFunc processes one inbound message.
type HandleFunc func(ctx context.Context, in message.Inbound)

// Sequencer runs one worker per active conversation so messages within a
// chat are handled in arrival order while chats proceed in parallel.
type Sequencer struct {
	handle HandleFunc
	idle   time.Duration
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	chats  map[string]chan message.Inbound
	closed bool
	group  errgroup.Group
}

// NewSequencer creates a sequencer. Workers exit after idle without input.
func NewSequencer(handle HandleFunc, idle time.Duration, log *logger.Logger) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sequencer{
		handle: handle,
		idle:   idle,
		logger: log.WithModule("sequencer"),
		ctx:    ctx,
		cancel: cancel,
		chats:  make(map[string]chan message.Inbound),
	}
	s.group.SetLimit(maxConversations)
	return s
}

// Submit queues in behind earlier messages from the same chat. It returns
// false when the chat's backlog is full, too many conversations are active,
// or the sequencer is closed.
func (s *Sequencer) Submit(in message.Inbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	ch, ok := s.chats[in.ChatID]
	if !ok {
		ch = make(chan message.Inbound, sequencerBuffer)
		started := s.group.TryGo(func() error {
			s.work(in.ChatID, ch)
			return nil
		})
		if !started {
			s.logger.WithField("chat_id", in.ChatID).Warnf("Too many active conversations, dropping message")
			return false
		}
		s.chats[in.ChatID] = ch
	}

	select {
	case ch <- in:
		return true
	default:
		s.logger.WithField("chat_id", in.ChatID).Warnf("Conversation backlog full, dropping message")
		return false
	}
}

func (s *Sequencer) work(chatID string, ch chan message.Inbound) {
	timer := time.NewTimer(s.idle)
	defer timer.Stop()

	for {
		select {
		case in, ok := <-ch:
			if !ok {
				return
			}
			s.handle(s.ctx, in)
			timer.Reset(s.idle)

		case <-timer.C:
			// Submit holds mu while sending, so an empty channel here means
			// no message can slip in before the worker is removed.
			s.mu.Lock()
			if len(ch) == 0 {
				delete(s.chats, chatID)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			timer.Reset(s.idle)
		}
	}
}

// Active returns the number of running workers.
func (s *Sequencer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

// Close stops accepting messages, lets workers finish their backlog, and
// waits for them until ctx ends. In-flight handlers are cancelled when ctx
// ends first.
func (s *Sequencer) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, ch := range s.chats {
			close(ch)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
