package admin

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/buildinfo"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/info"
)

const gib = 1 << 30

// Component is the state of one bot subsystem as shown by !health.
type Component struct {
	Name    string
	Healthy bool
	Detail  string
}

// StatusReporter lists the bot's subsystems, e.g. the WhatsApp session,
// the database and the retry queue.
type StatusReporter interface {
	Components(ctx context.Context) []Component
}

func (h *Handler) handleHealth(ctx context.Context, _ []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
	var b strings.Builder

	healthy := true
	if h.reporter != nil {
		b.WriteString("*Components*\n")
		for _, c := range h.reporter.Components(ctx) {
			mark := "✅"
			if !c.Healthy {
				mark = "❌"
				healthy = false
			}
			fmt.Fprintf(&b, "%s %s", mark, c.Name)
			if c.Detail != "" {
				fmt.Fprintf(&b, ": %s", c.Detail)
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("*Host*\n")
	writeHostStats(ctx, &b)

	b.WriteString("\n*Process*\n")
	fmt.Fprintf(&b, "Version: %s\n", buildinfo.String())
	fmt.Fprintf(&b, "Uptime: %s\n", info.FormatUptime(time.Since(h.started)))
	fmt.Fprintf(&b, "Goroutines: %d\n", runtime.NumGoroutine())
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			fmt.Fprintf(&b, "RSS: %.1f MB\n", float64(mi.RSS)/(1<<20))
		}
	}

	title := "🩺 HEALTH: OK"
	if !healthy {
		title = "🩺 HEALTH: DEGRADED"
	}
	return message.NewText("*" + title + "*\n\n" + strings.TrimSuffix(b.String(), "\n")), nil
}

// writeHostStats appends whatever gopsutil can read on this platform.
func writeHostStats(ctx context.Context, b *strings.Builder) {
	if hi, err := host.InfoWithContext(ctx); err == nil {
		fmt.Fprintf(b, "Host: %s (%s %s)\n", hi.Hostname, hi.Platform, hi.PlatformVersion)
		fmt.Fprintf(b, "Host uptime: %s\n", info.FormatUptime(time.Duration(hi.Uptime)*time.Second))
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		fmt.Fprintf(b, "CPU: %.1f%% (%d cores)\n", pct[0], runtime.NumCPU())
	}
	if l, err := load.AvgWithContext(ctx); err == nil {
		fmt.Fprintf(b, "Load: %.2f %.2f %.2f\n", l.Load1, l.Load5, l.Load15)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fmt.Fprintf(b, "Memory: %.1f/%.1f GB (%.0f%%)\n", float64(vm.Used)/gib, float64(vm.Total)/gib, vm.UsedPercent)
	}
}
