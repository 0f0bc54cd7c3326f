package nlu

import "github.com/garyellow/whatsapp-commerce-bot/internal/command"

// Route maps a classified intent to the command that serves it. ok is false
// when no command applies, as for a greeting or an order that names no
// product; callers answer those with a hint.
func Route(res Result) (name string, args []string, ok bool) {
	switch res.Intent {
	case command.IntentHelp:
		return "help", nil, true
	case command.IntentBrowse:
		return "help", []string{"shopping"}, true
	case command.IntentOrder:
		if len(res.Args) > 0 {
			return "search", res.Args, true
		}
	case command.IntentAddToCart:
		if len(res.Args) > 0 {
			return "add", res.Args, true
		}
	case command.IntentCheckout:
		return "checkout", nil, true
	case command.IntentTrack:
		if len(res.Args) > 0 {
			return "track", res.Args, true
		}
	case command.IntentProfile:
		return "profile", nil, true
	}
	return "", nil, false
}
