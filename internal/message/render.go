package message

import (
	"strconv"
	"strings"
)

// DefaultFooter is appended to rendered menus that carry no footer.
const DefaultFooter = "Smart Bot"

// replyHint tells the user how to pick a numbered option.
const replyHint = "_Reply with a number to choose._"

// Option is a numbered entry produced when a list or buttons message is
// rendered as text. ID is empty for link buttons.
type Option struct {
	Number int
	ID     string
	Label  string
}

// RenderText flattens any request into plain text. Every section title,
// row title, row description, button label and button URL is kept, in
// order. Rows are numbered 1..N across sections. The returned options map
// numbers back to the IDs the interactive form would have sent.
func RenderText(r Request, footer string) (string, []Option) {
	if footer == "" {
		footer = DefaultFooter
	}
	switch {
	case r.Kind == KindList && r.List != nil:
		return renderList(r.List, footer)
	case r.Kind == KindButtons && r.Buttons != nil:
		return renderButtons(r.Buttons, footer)
	default:
		return r.Text, nil
	}
}

func renderList(l *List, footer string) (string, []Option) {
	var b strings.Builder
	writeHeader(&b, l.Header)
	b.WriteString(l.Body)
	b.WriteString("\n\n")

	var options []Option
	for _, s := range l.Sections {
		if s.Title != "" {
			b.WriteString("*" + s.Title + "*\n")
		}
		for _, row := range s.Rows {
			n := len(options) + 1
			b.WriteString(strconv.Itoa(n) + ". " + row.Title)
			if row.Description != "" {
				b.WriteString(" - " + row.Description)
			}
			b.WriteByte('\n')
			options = append(options, Option{Number: n, ID: row.ID, Label: row.Title})
		}
	}

	writeFooter(&b, options, firstNonEmpty(l.Footer, footer))
	return b.String(), options
}

func renderButtons(bt *Buttons, footer string) (string, []Option) {
	var b strings.Builder
	writeHeader(&b, bt.Header)
	b.WriteString(bt.Body)
	b.WriteString("\n\n")

	options := make([]Option, 0, len(bt.Buttons))
	for i, btn := range bt.Buttons {
		n := i + 1
		b.WriteString(strconv.Itoa(n) + ". " + btn.Label)
		if btn.URL != "" {
			b.WriteString(" (" + btn.URL + ")")
		}
		b.WriteByte('\n')
		options = append(options, Option{Number: n, ID: btn.ID, Label: btn.Label})
	}

	writeFooter(&b, options, firstNonEmpty(bt.Footer, footer))
	return b.String(), options
}

func writeHeader(b *strings.Builder, header string) {
	if header != "" {
		b.WriteString("*" + header + "*\n")
	}
}

func writeFooter(b *strings.Builder, options []Option, footer string) {
	for _, o := range options {
		if o.ID != "" {
			b.WriteString("\n" + replyHint + "\n")
			break
		}
	}
	b.WriteString("\n" + footer)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
