package whatsapp

import (
	"errors"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"

	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
)

var errEmptyTarget = errors.New("empty target")

// ParseTarget accepts a full JID ("263771234567@s.whatsapp.net",
// "1203630@g.us") or a bare phone number in any notation.
func ParseTarget(target string) (types.JID, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.EmptyJID, errEmptyTarget
	}
	if strings.ContainsRune(target, '@') {
		return types.ParseJID(target)
	}
	phone := backend.NormalizePhone(target)
	if phone == "" {
		return types.EmptyJID, errors.New("target has no digits: " + target)
	}
	return types.NewJID(phone, types.DefaultUserServer), nil
}

// IsGroup reports whether the JID addresses a group chat.
func IsGroup(jid types.JID) bool {
	return jid.Server == types.GroupServer
}

var mentionPattern = regexp.MustCompile(`@\d{5,}`)

// stripMentions removes "@<number>" tokens left in text by mentions.
func stripMentions(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " ")
}
