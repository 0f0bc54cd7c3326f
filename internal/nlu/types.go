// Package nlu turns free-form chat text into shopping intents. A fixed
// keyword table answers first; an optional LLM classifier (Gemini, or Groq
// through the OpenAI-compatible API) handles the rest under a per-user
// rate limit.
package nlu

import (
	"context"

	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderGroq   Provider = "groq"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// Default models, cheapest first.
const (
	DefaultGeminiModel = "gemini-2.5-flash-lite"
	DefaultGroqModel   = "llama-3.1-8b-instant"
)

// Sources recorded in wabot_intents_total.
const (
	SourceKeyword = "keyword"
	SourceLLM     = "llm"
)

// Result is a classified message. Args carries the extracted parameter
// (search query, product ID or order ID) when the intent has one. Reply is
// set for direct replies, which have no intent.
type Result struct {
	Intent command.Intent
	Args   []string
	Reply  string
	Source string
}

// Classifier is an LLM-backed intent classifier.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
	Provider() Provider
}

// function is one tool the model may call.
type function struct {
	name        string
	description string
	param       string // Empty when the function takes no argument
	paramDesc   string
	intent      command.Intent
}

const directReply = "direct_reply"

var functions = []function{
	{name: "greet", description: "The user says hello or starts a conversation.", intent: command.IntentGreet},
	{name: "show_help", description: "The user asks what the bot can do or how to use it.", intent: command.IntentHelp},
	{name: "browse_catalog", description: "The user wants to look around the shop without a specific product in mind.", intent: command.IntentBrowse},
	{
		name: "search_products", description: "The user is looking for a specific kind of product.",
		param: "query", paramDesc: "Product search words in English, e.g. \"sadza\", \"phone charger\".",
		intent: command.IntentOrder,
	},
	{
		name: "add_to_cart", description: "The user wants to add a known product ID to the cart.",
		param: "product_id", paramDesc: "Product ID exactly as the user wrote it, e.g. \"p_123\".",
		intent: command.IntentAddToCart,
	},
	{name: "checkout", description: "The user wants to pay for or place the order in the cart.", intent: command.IntentCheckout},
	{
		name: "track_order", description: "The user asks where an order is or for its status.",
		param: "order_id", paramDesc: "Order ID if the user gave one, otherwise empty.",
		intent: command.IntentTrack,
	},
	{name: "view_profile", description: "The user asks about their account or details.", intent: command.IntentProfile},
	{
		name: directReply, description: "Anything else: chit-chat, thanks, or questions the shop cannot answer.",
		param: "message", paramDesc: "A short, friendly reply in the user's language.",
	},
}

func lookupFunction(name string) (function, bool) {
	for _, f := range functions {
		if f.name == name {
			return f, true
		}
	}
	return function{}, false
}

// resultFor converts a function call into a Result. A missing or empty
// parameter leaves Args empty.
func resultFor(name string, args map[string]any) (Result, error) {
	f, ok := lookupFunction(name)
	if !ok {
		return Result{}, &unknownFunctionError{name: name}
	}
	res := Result{Intent: f.intent, Source: SourceLLM}
	if f.param == "" {
		return res, nil
	}
	value, _ := args[f.param].(string)
	if f.name == directReply {
		res.Reply = value
		return res, nil
	}
	if value != "" {
		res.Args = []string{value}
	}
	return res, nil
}

type unknownFunctionError struct{ name string }

func (e *unknownFunctionError) Error() string { return "unknown function: " + e.name }
