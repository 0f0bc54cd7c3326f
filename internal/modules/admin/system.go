package admin

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
)

var (
	salesTimeframes = []string{"today", "week", "month"}
	recipientTypes  = []string{"all", "customers", "merchants"}
)

// stats fetches analytics and alerts concurrently. A failed alerts call only
// hides the alert line.
func (h *Handler) stats(ctx context.Context, _ []string, p auth.Principal) (message.Request, error) {
	var (
		analytics backend.SystemAnalytics
		alerts    []backend.Alert
		failed    string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp := h.api.SystemAnalytics(gctx, p.UserID)
		if resp.Unavailable() {
			return resp.Err
		}
		if !resp.Success {
			failed = orDefault(resp.Error, "Failed to fetch statistics")
			return nil
		}
		return resp.Decode(&analytics)
	})
	g.Go(func() error {
		resp := h.api.SystemAlerts(gctx)
		if resp.Success {
			if err := resp.Decode(&alerts); err != nil {
				h.logger.WithError(err).Warnf("Malformed alerts payload")
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return message.Request{}, err
	}
	if failed != "" {
		return message.NewText(message.Failure("Statistics", failed, "")), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Total Users: %d\n", analytics.TotalUsers)
	fmt.Fprintf(&b, "🛍️ Customers: %d\n", analytics.CustomerCount)
	fmt.Fprintf(&b, "🏪 Merchants: %d\n", analytics.MerchantCount)
	fmt.Fprintf(&b, "📦 Total Orders: %d\n", analytics.TotalOrders)
	fmt.Fprintf(&b, "💰 Total Revenue: %s\n", message.Money(analytics.TotalRevenue))
	if analytics.AvgResponseTime > 0 {
		fmt.Fprintf(&b, "📊 Avg Response: %.0fms\n", analytics.AvgResponseTime)
	} else {
		b.WriteString("📊 Avg Response: N/A\n")
	}
	fmt.Fprintf(&b, "🚨 Active Alerts: %d", len(alerts))

	return message.NewButtons(message.Buttons{
		Header: "📈 SYSTEM STATISTICS",
		Body:   b.String(),
		Buttons: []message.Button{
			{ID: h.prefix + "admin alerts", Label: "🚨 Alerts"},
			{ID: h.prefix + "health", Label: "🩺 Health"},
		},
	}), nil
}

func (h *Handler) sales(ctx context.Context, args []string, p auth.Principal) (message.Request, error) {
	if len(args) == 0 {
		rows := make([]message.Row, len(salesTimeframes))
		for i, tf := range salesTimeframes {
			rows[i] = message.Row{ID: h.prefix + "admin sales " + tf, Title: strings.ToUpper(tf[:1]) + tf[1:]}
		}
		return message.NewList(message.List{
			Header:     "📊 SELECT TIME PERIOD",
			Body:       "Choose a timeframe to view sales data",
			ButtonText: "Timeframe",
			Sections:   []message.Section{{Title: "Period", Rows: rows}},
		}), nil
	}
	timeframe := strings.ToLower(args[0])
	if !slices.Contains(salesTimeframes, timeframe) {
		return message.NewText(message.Failure("Invalid Timeframe",
			fmt.Sprintf("Unknown timeframe *%s*.", args[0]), "Use one of: "+strings.Join(salesTimeframes, ", "))), nil
	}

	resp := h.api.SystemAnalytics(ctx, p.UserID)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Sales", orDefault(resp.Error, "Failed to fetch analytics"), "")), nil
	}
	var a backend.SystemAnalytics
	if err := resp.Decode(&a); err != nil {
		return message.Request{}, err
	}
	return message.NewText(message.Info("Sales · "+strings.ToUpper(timeframe), fmt.Sprintf(
		"📦 Total Orders: %d\n💰 Revenue: %s\n🏪 Merchants: %d\n👥 Customers: %d",
		a.TotalOrders, message.Money(a.TotalRevenue), a.MerchantCount, a.CustomerCount), "")), nil
}

func (h *Handler) broadcast(ctx context.Context, args []string, p auth.Principal) (message.Request, error) {
	recipients := "all"
	if slices.Contains(recipientTypes, strings.ToLower(args[0])) {
		recipients = strings.ToLower(args[0])
		args = args[1:]
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return message.NewText(message.Failure("Message Required",
			fmt.Sprintf("Usage: %sadmin broadcast [all|customers|merchants] <message>", h.prefix), "")), nil
	}

	resp := h.api.SendBroadcast(ctx, p.UserID, text, recipients)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	if !resp.Success {
		return message.NewText(message.Failure("Broadcast Failed", orDefault(resp.Error, "Failed to send broadcast"), "")), nil
	}
	var result backend.BroadcastResult
	if err := resp.DecodeOptional(&result); err != nil {
		h.logger.WithError(err).Warnf("Malformed broadcast result")
	}
	sentTo := recipients
	if result.RecipientsCount > 0 {
		sentTo = fmt.Sprintf("%d", result.RecipientsCount)
	}
	h.logger.WithField("recipients", recipients).WithField("count", result.RecipientsCount).Infof("Broadcast sent")
	return message.NewText(message.Success("Broadcast Sent", fmt.Sprintf("Message sent to %s users.", sentTo))), nil
}

func (h *Handler) alerts(ctx context.Context, _ []string, _ auth.Principal) (message.Request, error) {
	resp := h.api.SystemAlerts(ctx)
	if resp.Unavailable() {
		return message.Request{}, resp.Err
	}
	var alerts []backend.Alert
	if resp.Success {
		if err := resp.Decode(&alerts); err != nil {
			return message.Request{}, err
		}
	}
	if len(alerts) == 0 {
		return message.NewText("✅ No active alerts"), nil
	}

	shown := alerts[:min(len(alerts), message.MaxListRows)]
	rows := make([]message.Row, len(shown))
	for i, a := range shown {
		id := a.ID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		rows[i] = message.Row{
			ID:          h.prefix + "admin alerts " + id,
			Title:       message.Truncate(severityEmoji(a.Severity)+" "+a.Title, message.MaxRowTitleLength),
			Description: message.Truncate(a.Description, message.MaxRowDescLength),
		}
	}
	plural := "s"
	if len(alerts) == 1 {
		plural = ""
	}
	return message.NewList(message.List{
		Header:     "🚨 SYSTEM ALERTS",
		Body:       fmt.Sprintf("%d active alert%s", len(alerts), plural),
		Footer:     "Review and take action",
		ButtonText: "View Alerts",
		Sections:   []message.Section{{Title: "Alerts", Rows: rows}},
	}), nil
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return "🔴"
	case "warning", "medium":
		return "🟡"
	default:
		return "🔵"
	}
}
