package command

import (
	"regexp"
	"slices"
	"strings"
)

// Intent is a natural-language goal recognized in free text.
type Intent string

// Recognized intents.
const (
	IntentGreet     Intent = "greet"
	IntentHelp      Intent = "help"
	IntentBrowse    Intent = "browse"
	IntentOrder     Intent = "order"
	IntentAddToCart Intent = "add_to_cart"
	IntentCheckout  Intent = "checkout"
	IntentTrack     Intent = "track"
	IntentProfile   Intent = "profile"
)

// Intents lists every intent in match priority order.
var Intents = []Intent{
	IntentCheckout, IntentAddToCart, IntentTrack, IntentOrder,
	IntentBrowse, IntentProfile, IntentHelp, IntentGreet,
}

// intentKeywords maps intents to whole-word keywords and phrases. Earlier
// entries in Intents win, so "track my order" is a track intent.
var intentKeywords = map[Intent][]string{
	IntentCheckout:  {"checkout", "check out", "pay now", "place my order", "complete order"},
	IntentAddToCart: {"add to cart", "add to my cart", "add to basket", "put in cart"},
	IntentTrack:     {"track", "tracking", "where is my order", "order status", "delivery status"},
	IntentOrder:     {"order", "buy", "purchase", "i want", "i'd like"},
	IntentBrowse:    {"menu", "browse", "catalog", "catalogue", "products", "shop", "show me"},
	IntentProfile:   {"profile", "my account", "my details", "account info"},
	IntentHelp:      {"help", "support", "assist", "how do i", "what can you do"},
	IntentGreet:     {"hello", "hi", "hey", "hiya", "good morning", "good afternoon", "good evening", "greetings"},
}

type intentPattern struct {
	intent Intent
	regex  *regexp.Regexp
}

var intentPatterns = buildIntentPatterns()

func buildIntentPatterns() []intentPattern {
	patterns := make([]intentPattern, 0, len(Intents))
	for _, intent := range Intents {
		keywords := slices.Clone(intentKeywords[intent])
		// Longest first so phrases beat their own prefixes
		slices.SortFunc(keywords, func(a, b string) int {
			return len(b) - len(a)
		})
		quoted := make([]string, len(keywords))
		for i, k := range keywords {
			quoted[i] = regexp.QuoteMeta(k)
		}
		patterns = append(patterns, intentPattern{
			intent: intent,
			regex:  regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}'])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}'])`),
		})
	}
	return patterns
}

// DetectIntent looks for a known keyword or phrase in text. Matching is
// case-insensitive and only on whole words.
//
// Example:
//
//	DetectIntent("I want to order a pizza") // IntentOrder, true
//	DetectIntent("show me the menu")        // IntentBrowse, true
//	DetectIntent("thanks")                  // "", false
func DetectIntent(text string) (Intent, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", false
	}
	for _, p := range intentPatterns {
		if p.regex.MatchString(text) {
			return p.intent, true
		}
	}
	return "", false
}
