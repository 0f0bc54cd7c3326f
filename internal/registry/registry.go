// Package registry holds the static command catalog: names, aliases,
// requirements, cooldowns and the handler behind each command.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

// Handler runs a command. Returned requests carry no target; the caller
// addresses them to the originating chat.
type Handler interface {
	Handle(ctx context.Context, args []string, p auth.Principal, conv message.Conversation) (message.Request, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args []string, p auth.Principal, conv message.Conversation) (message.Request, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, args []string, p auth.Principal, conv message.Conversation) (message.Request, error) {
	return f(ctx, args, p, conv)
}

// Descriptor describes one command.
type Descriptor struct {
	Name         string
	Aliases      []string
	RequiredRole auth.Role
	Scope        auth.Scope
	Usage        string // Without prefix, e.g. "add <product_id> [qty]"
	Description  string
	Category     string // Category key
	Cooldown     time.Duration
	MinArgs      int
	Handler      Handler
}

// Requirement returns the role gate requirement of the command.
func (d *Descriptor) Requirement() auth.Requirement {
	return auth.Requirement{Role: d.RequiredRole, Scope: d.Scope}
}

// Category groups commands in help output.
type Category struct {
	Key   string
	Name  string
	Emoji string
}

// Title returns the emoji-prefixed category name.
func (c Category) Title() string {
	if c.Emoji == "" {
		return c.Name
	}
	return c.Emoji + " " + c.Name
}

// CategoryCommands is a category with its commands in declaration order.
type CategoryCommands struct {
	Category Category
	Commands []*Descriptor
}

// Registry resolves command tokens to descriptors. It is immutable after New
// and safe for concurrent use.
type Registry struct {
	categories []Category
	byKey      map[string]int
	commands   []*Descriptor
	index      map[string]*Descriptor // Names and aliases, lowercased
}

// New builds a registry. Construction fails if a name or alias is empty or
// used twice (case-insensitively, names and aliases share one namespace), a
// category is unknown, or a handler is missing. All problems are reported.
func New(categories []Category, descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		categories: categories,
		byKey:      make(map[string]int, len(categories)),
		commands:   make([]*Descriptor, 0, len(descs)),
		index:      make(map[string]*Descriptor, len(descs)*2),
	}

	var errs []error
	for i, c := range categories {
		key := strings.ToLower(c.Key)
		if _, dup := r.byKey[key]; dup || key == "" {
			errs = append(errs, fmt.Errorf("category %q: empty or duplicate key", c.Key))
			continue
		}
		r.byKey[key] = i
	}

	for i := range descs {
		d := descs[i]
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		d.Category = strings.ToLower(d.Category)
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("command #%d: empty name", i))
			continue
		}
		if d.Handler == nil {
			errs = append(errs, fmt.Errorf("command %q: nil handler", d.Name))
		}
		if _, ok := r.byKey[d.Category]; !ok {
			errs = append(errs, fmt.Errorf("command %q: unknown category %q", d.Name, d.Category))
		}

		aliases := make([]string, 0, len(d.Aliases))
		for _, a := range d.Aliases {
			aliases = append(aliases, strings.ToLower(strings.TrimSpace(a)))
		}
		d.Aliases = aliases

		desc := &d
		for _, token := range append([]string{d.Name}, d.Aliases...) {
			if token == "" {
				errs = append(errs, fmt.Errorf("command %q: empty alias", d.Name))
				continue
			}
			if owner, taken := r.index[token]; taken {
				errs = append(errs, fmt.Errorf("command %q: %q already registered by %q", d.Name, token, owner.Name))
				continue
			}
			r.index[token] = desc
		}
		r.commands = append(r.commands, desc)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid command registry: %w", err)
	}
	return r, nil
}

// Resolve looks up a command by name or alias.
func (r *Registry) Resolve(token string) (*Descriptor, bool) {
	d, ok := r.index[strings.ToLower(token)]
	return d, ok
}

// Commands returns all descriptors in declaration order.
func (r *Registry) Commands() []*Descriptor {
	return r.commands
}

// Categories returns the categories in display order.
func (r *Registry) Categories() []Category {
	return r.categories
}

// Category looks up a category by key, case-insensitively.
func (r *Registry) Category(key string) (Category, bool) {
	i, ok := r.byKey[strings.ToLower(key)]
	if !ok {
		return Category{}, false
	}
	return r.categories[i], true
}

// AllByCategory groups commands by category. Categories keep their display
// order and commands keep declaration order. Empty categories are omitted.
func (r *Registry) AllByCategory() []CategoryCommands {
	groups := make([]CategoryCommands, len(r.categories))
	for i, c := range r.categories {
		groups[i].Category = c
	}
	for _, d := range r.commands {
		i := r.byKey[d.Category]
		groups[i].Commands = append(groups[i].Commands, d)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Commands) > 0 {
			out = append(out, g)
		}
	}
	return out
}
