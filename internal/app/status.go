package app

import (
	"context"
	"fmt"

	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/admin"
)

// Components implements admin.StatusReporter for !health and /health.
func (a *Application) Components(ctx context.Context) []admin.Component {
	var comps []admin.Component

	if a.session != nil {
		ok, detail := a.session.Status()
		comps = append(comps, admin.Component{Name: "whatsapp", Healthy: ok, Detail: detail})
	}

	db := admin.Component{Name: "database", Healthy: true, Detail: "ok"}
	if err := a.db.Ping(ctx); err != nil {
		db.Healthy, db.Detail = false, err.Error()
	}
	comps = append(comps, db)

	if a.queue != nil {
		depth, capacity := a.queue.Len(), a.cfg.Bot.RetryQueueCapacity
		comps = append(comps, admin.Component{
			Name:    "retry_queue",
			Healthy: capacity <= 0 || depth < capacity,
			Detail:  fmt.Sprintf("%d pending", depth),
		})
	}

	llm := admin.Component{Name: "llm", Healthy: true, Detail: "keywords only"}
	if a.nlu.LLMEnabled() {
		llm.Detail = "enabled"
	}
	comps = append(comps, llm)

	return comps
}
