package bot

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

type selection struct {
	ids     map[int]string
	expires time.Time
}

// Selections remembers the numbered options of menus that were sent as
// text, so a bare "2" reply can stand in for tapping the second row.
type Selections struct {
	mu     sync.Mutex
	byChat map[string]selection
	ttl    time.Duration
	now    func() time.Time
}

// NewSelections keeps options for ttl after they are sent.
func NewSelections(ttl time.Duration) *Selections {
	return &Selections{byChat: make(map[string]selection), ttl: ttl, now: time.Now}
}

// Remember replaces the options for chatID. It has the delivery.FallbackFunc
// signature. Link-only options carry no ID and are skipped.
func (s *Selections) Remember(chatID string, options []message.Option) {
	ids := make(map[int]string, len(options))
	for _, o := range options {
		if o.ID != "" {
			ids[o.Number] = o.ID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		delete(s.byChat, chatID)
		return
	}
	s.byChat[chatID] = selection{ids: ids, expires: s.now().Add(s.ttl)}
}

// Resolve maps a bare number to the remembered option ID. Anything else,
// or an expired menu, returns false.
func (s *Selections) Resolve(chatID, text string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.byChat[chatID]
	if !ok {
		return "", false
	}
	if !s.now().Before(sel.expires) {
		delete(s.byChat, chatID)
		return "", false
	}
	id, ok := sel.ids[n]
	return id, ok
}

// Sweep drops expired entries and returns how many were removed.
func (s *Selections) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for chatID, sel := range s.byChat {
		if !now.Before(sel.expires) {
			delete(s.byChat, chatID)
			removed++
		}
	}
	return removed
}

// Len returns the number of chats with live options.
func (s *Selections) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byChat)
}
