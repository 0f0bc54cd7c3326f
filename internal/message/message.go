// Package message defines the protocol-neutral shapes exchanged between the
// command pipeline and the chat transport: inbound messages, outbound
// requests (text, list, buttons) and their plain-text rendering.
package message

import (
	"time"
)

// Kind is the shape of an outbound message.
type Kind int

const (
	// KindText is a plain text message.
	KindText Kind = iota
	// KindList is a single-select list of rows grouped in sections.
	KindList
	// KindButtons is a short set of reply or URL buttons.
	KindButtons
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindButtons:
		return "buttons"
	default:
		return "text"
	}
}

// Row is one selectable entry in a list. ID is what the user's selection
// sends back, usually a command line such as "!track ord_42".
type Row struct {
	ID          string
	Title       string
	Description string
}

// Section groups rows under a title.
type Section struct {
	Title string
	Rows  []Row
}

// List is a single-select menu.
type List struct {
	Header     string
	Body       string
	Footer     string
	ButtonText string // Label of the button that opens the list
	Sections   []Section
}

// Button is a quick reply (ID set) or a link (URL set).
type Button struct {
	ID    string
	Label string
	URL   string
}

// Buttons is a message with a small set of buttons.
type Buttons struct {
	Header  string
	Body    string
	Footer  string
	Buttons []Button
}

// Request is an outbound message addressed to a chat.
type Request struct {
	Target  string
	Kind    Kind
	Text    string
	List    *List
	Buttons *Buttons
}

// NewText builds a text request.
func NewText(text string) Request {
	return Request{Kind: KindText, Text: text}
}

// NewList builds a list request.
func NewList(list List) Request {
	return Request{Kind: KindList, List: &list}
}

// NewButtons builds a buttons request.
func NewButtons(buttons Buttons) Request {
	return Request{Kind: KindButtons, Buttons: &buttons}
}

// To returns a copy of r addressed to target.
func (r Request) To(target string) Request {
	r.Target = target
	return r
}

// IsZero reports whether r carries nothing to send.
func (r Request) IsZero() bool {
	return r.Text == "" && r.List == nil && r.Buttons == nil
}

// Conversation identifies where a message arrived.
type Conversation struct {
	ChatID    string // JID of the private chat or group
	IsGroup   bool
	MessageID string
}

// GroupInfo is the metadata of a group chat as reported by the transport.
type GroupInfo struct {
	Name    string
	Topic   string
	Created time.Time
	OwnerID string // Phone number of the creator, if known
	Members int
	Admins  int
	Locked  bool // Only admins may edit group settings
}

// Inbound is a text message received from the transport. Selections from
// interactive lists and buttons arrive with Text set to the selected ID.
type Inbound struct {
	MessageID string
	ChatID    string
	SenderID  string // Normalized phone number of the author
	PushName  string
	Text      string
	IsGroup   bool
	Mentioned bool // The bot was @-mentioned in a group
	Timestamp time.Time
}

// Conversation returns the conversation context of the message.
func (m Inbound) Conversation() Conversation {
	return Conversation{ChatID: m.ChatID, IsGroup: m.IsGroup, MessageID: m.MessageID}
}
