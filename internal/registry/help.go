package registry

import (
	"fmt"
	"strings"

	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// Filter selects which commands a viewer may see in help output.
// A nil Filter shows everything.
type Filter func(*Descriptor) bool

func (f Filter) allows(d *Descriptor) bool {
	return f == nil || f(d)
}

// MainMenu renders the category overview. Each row selects "help <key>".
func (r *Registry) MainMenu(prefix string, visible Filter) message.Request {
	rows := make([]message.Row, 0, len(r.categories))
	for _, g := range r.AllByCategory() {
		n := 0
		for _, d := range g.Commands {
			if visible.allows(d) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		rows = append(rows, message.Row{
			ID:          prefix + "help " + g.Category.Key,
			Title:       message.Truncate(g.Category.Title(), message.MaxRowTitleLength),
			Description: fmt.Sprintf("%d commands", n),
		})
	}

	return message.NewList(message.List{
		Header:     "Main Menu",
		Body:       "📱 *SMART BOT MAIN MENU*\n\nSelect a category to view commands:",
		ButtonText: "Browse",
		Sections:   []message.Section{{Title: "Categories", Rows: rows}},
	})
}

// CategoryMenu renders the commands of one category. Each row selects the
// command itself.
func (r *Registry) CategoryMenu(key, prefix string, visible Filter) (message.Request, bool) {
	cat, ok := r.Category(key)
	if !ok {
		return message.Request{}, false
	}

	var rows []message.Row
	for _, d := range r.commands {
		if d.Category != cat.Key || !visible.allows(d) {
			continue
		}
		rows = append(rows, message.Row{
			ID:          prefix + d.Name,
			Title:       message.Truncate(prefix+d.Name, message.MaxRowTitleLength),
			Description: message.Truncate(d.Description, message.MaxRowDescLength),
		})
	}
	if len(rows) == 0 {
		return message.Request{}, false
	}

	return message.NewList(message.List{
		Header:     cat.Name,
		Body:       fmt.Sprintf("%s *%s*\n\nSelect a command:", cat.Emoji, strings.ToUpper(cat.Name)),
		ButtonText: "Select Command",
		Sections:   []message.Section{{Title: message.Truncate(cat.Name, message.MaxSectionTitle), Rows: rows}},
	}), true
}

// CommandHelp renders usage details for one command.
func CommandHelp(d *Descriptor, prefix string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📖 *%s%s*\n\n%s\n\n", prefix, d.Name, d.Description)

	usage := d.Usage
	if usage == "" {
		usage = d.Name
	}
	fmt.Fprintf(&b, "*Usage:* %s%s", prefix, usage)

	if len(d.Aliases) > 0 {
		aliases := make([]string, len(d.Aliases))
		for i, a := range d.Aliases {
			aliases[i] = prefix + a
		}
		fmt.Fprintf(&b, "\n*Aliases:* %s", strings.Join(aliases, ", "))
	}
	if d.Cooldown > 0 {
		fmt.Fprintf(&b, "\n*Cooldown:* %s", d.Cooldown)
	}
	if d.RequiredRole > 0 {
		fmt.Fprintf(&b, "\n*Access:* %s", d.RequiredRole)
	}
	if d.Scope != 0 {
		fmt.Fprintf(&b, "\n*Where:* %s chats only", d.Scope)
	}
	return b.String()
}

// UsageText is the short hint shown when a command is missing arguments.
func UsageText(d *Descriptor, prefix string) string {
	usage := d.Usage
	if usage == "" {
		usage = d.Name
	}
	return fmt.Sprintf("📝 Usage: %s%s", prefix, usage)
}
