package message

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// WhatsApp interactive message limits (rune counts).
const (
	MaxListRows          = 10
	MaxListSections      = 10
	MaxRowTitleLength    = 24
	MaxRowDescLength     = 72
	MaxSectionTitle      = 24
	MaxListButtonText    = 20
	MaxReplyButtons      = 3
	MaxButtonLabelLength = 20
	MaxBodyLength        = 1024
	MaxTextLength        = 4096
)

// ErrInvalidInteractive marks a request that cannot be sent as a native
// interactive message and must be rendered as text.
var ErrInvalidInteractive = errors.New("invalid interactive message")

// Validate checks a list or buttons request against the interactive limits.
// Text requests are always valid.
func (r Request) Validate() error {
	switch r.Kind {
	case KindList:
		return validateList(r.List)
	case KindButtons:
		return validateButtons(r.Buttons)
	default:
		return nil
	}
}

func validateList(l *List) error {
	if l == nil {
		return fmt.Errorf("%w: list payload missing", ErrInvalidInteractive)
	}
	if len(l.Sections) == 0 || len(l.Sections) > MaxListSections {
		return fmt.Errorf("%w: %d sections", ErrInvalidInteractive, len(l.Sections))
	}
	if utf8.RuneCountInString(l.Body) > MaxBodyLength {
		return fmt.Errorf("%w: body too long", ErrInvalidInteractive)
	}
	rows := 0
	for _, s := range l.Sections {
		if utf8.RuneCountInString(s.Title) > MaxSectionTitle {
			return fmt.Errorf("%w: section title %q too long", ErrInvalidInteractive, s.Title)
		}
		for _, row := range s.Rows {
			rows++
			if row.ID == "" || row.Title == "" {
				return fmt.Errorf("%w: row needs id and title", ErrInvalidInteractive)
			}
			if utf8.RuneCountInString(row.Title) > MaxRowTitleLength || utf8.RuneCountInString(row.Description) > MaxRowDescLength {
				return fmt.Errorf("%w: row %q too long", ErrInvalidInteractive, row.ID)
			}
		}
	}
	if rows == 0 || rows > MaxListRows {
		return fmt.Errorf("%w: %d rows", ErrInvalidInteractive, rows)
	}
	if utf8.RuneCountInString(l.ButtonText) > MaxListButtonText {
		return fmt.Errorf("%w: button text too long", ErrInvalidInteractive)
	}
	return nil
}

func validateButtons(b *Buttons) error {
	if b == nil {
		return fmt.Errorf("%w: buttons payload missing", ErrInvalidInteractive)
	}
	if len(b.Buttons) == 0 || len(b.Buttons) > MaxReplyButtons {
		return fmt.Errorf("%w: %d buttons", ErrInvalidInteractive, len(b.Buttons))
	}
	if utf8.RuneCountInString(b.Body) > MaxBodyLength {
		return fmt.Errorf("%w: body too long", ErrInvalidInteractive)
	}
	for _, btn := range b.Buttons {
		if btn.Label == "" || (btn.ID == "" && btn.URL == "") {
			return fmt.Errorf("%w: button needs label and id or url", ErrInvalidInteractive)
		}
		if utf8.RuneCountInString(btn.Label) > MaxButtonLabelLength {
			return fmt.Errorf("%w: button label %q too long", ErrInvalidInteractive, btn.Label)
		}
	}
	return nil
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max == 1 {
		return string(runes[:1])
	}
	return string(runes[:max-1]) + "…"
}
