package message

import (
	"strconv"
	"strings"
)

// Currency is the code shown in front of amounts.
const Currency = "ZWL"

const ruleWidth = 40

var (
	heavyRule = strings.Repeat("═", ruleWidth)
	lightRule = strings.Repeat("─", ruleWidth)
)

// Success formats a confirmation card.
func Success(title, body string) string {
	return "✅ *" + title + "*\n" + heavyRule + "\n" + body
}

// Failure formats an error card with an optional suggestion.
func Failure(title, body, suggestion string) string {
	s := "❌ *" + title + "*\n" + lightRule + "\n" + body
	if suggestion != "" {
		s += "\n\n💡 *Suggestion:*\n" + suggestion
	}
	return s
}

// Info formats an informational card with optional tips.
func Info(title, body, tips string) string {
	s := "ℹ️ *" + title + "*\n" + lightRule + "\n" + body
	if tips != "" {
		s += "\n\n💡 *Tips:*\n" + tips
	}
	return s
}

// Numbered formats items as a titled, numbered list.
func Numbered(title string, items []string) string {
	var b strings.Builder
	b.WriteString("📋 *" + title + "*\n" + lightRule + "\n")
	for i, item := range items {
		b.WriteString(strconv.Itoa(i+1) + ". " + item + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Money formats an amount with two decimals, e.g. "ZWL 12.50".
func Money(amount float64) string {
	return Currency + " " + strconv.FormatFloat(amount, 'f', 2, 64)
}

var statusEmoji = map[string]string{
	"pending":          "⏳",
	"confirmed":        "✅",
	"preparing":        "👨‍🍳",
	"ready":            "📦",
	"out_for_delivery": "🚚",
	"delivered":        "✅",
	"cancelled":        "❌",
	"approved":         "✅",
	"rejected":         "❌",
	"suspended":        "⛔",
}

// StatusEmoji returns the icon for an order or merchant status.
func StatusEmoji(status string) string {
	if e, ok := statusEmoji[strings.ToLower(status)]; ok {
		return e
	}
	return "•"
}

// StatusLabel turns "out_for_delivery" into "Out for delivery".
func StatusLabel(status string) string {
	s := strings.ReplaceAll(strings.ToLower(status), "_", " ")
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
