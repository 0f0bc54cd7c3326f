package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/garyellow/whatsapp-commerce-bot/internal/admission"
	"github.com/garyellow/whatsapp-commerce-bot/internal/audit"
	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/registry"
)

const (
	owner    = "263700000001"
	customer = "263700000004"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *recordingAuditor) Emit(rec audit.Record) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return true
}

func (a *recordingAuditor) outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.records))
	for i, r := range a.records {
		out[i] = r.Command + ":" + r.Outcome
	}
	return out
}

func text(s string) registry.Handler {
	return registry.HandlerFunc(func(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
		return message.NewText(s), nil
	})
}

type fixture struct {
	d       *Dispatcher
	clock   *fakeClock
	auditor *recordingAuditor
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	cats := []registry.Category{{Key: "info", Name: "Info"}, {Key: "owner", Name: "Owner"}}
	reg, err := registry.New(cats,
		registry.Descriptor{Name: "ping", Category: "info", Cooldown: 5 * time.Second, Handler: text("🏓 Pong!")},
		registry.Descriptor{Name: "echo", Aliases: []string{"say"}, Category: "info", Usage: "echo <text>", MinArgs: 1,
			Handler: registry.HandlerFunc(func(_ context.Context, args []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
				return message.NewText(strings.Join(args, " ")), nil
			})},
		registry.Descriptor{Name: "track", Category: "info", Usage: "track <order_id>", MinArgs: 1, Cooldown: 5 * time.Second,
			Handler: text("📦 On its way")},
		registry.Descriptor{Name: "boom", Category: "info", Handler: registry.HandlerFunc(func(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
			panic("nil map write")
		})},
		registry.Descriptor{Name: "fail", Category: "info", Handler: registry.HandlerFunc(func(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
			return message.Request{}, errors.New("db locked")
		})},
		registry.Descriptor{Name: "down", Category: "info", Handler: registry.HandlerFunc(func(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
			return message.Request{}, fmt.Errorf("search: %w", domerrors.ErrBackendUnavailable)
		})},
		registry.Descriptor{Name: "explain", Category: "info", Handler: registry.HandlerFunc(func(context.Context, []string, auth.Principal, message.Conversation) (message.Request, error) {
			return message.Request{}, domerrors.Scope("shop.add").Reply(domerrors.ErrInvalidInput, "Quantity must be a number.")
		})},
		registry.Descriptor{Name: "slow", Category: "info", Handler: registry.HandlerFunc(func(ctx context.Context, _ []string, _ auth.Principal, _ message.Conversation) (message.Request, error) {
			<-ctx.Done()
			return message.Request{}, ctx.Err()
		})},
		registry.Descriptor{Name: "restart", Category: "owner", RequiredRole: auth.RoleOwner, Handler: text("restarting")},
		registry.Descriptor{Name: "groupmenu", Category: "info", Scope: auth.ScopeGroupOnly, Handler: text("group")},
	)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	auditor := &recordingAuditor{}
	m := metrics.New(prometheus.NewRegistry())
	d := New(reg,
		admission.New(admission.WithClock(clock.Now)),
		auth.NewGate([]string{owner}, nil, auth.MerchantOwnerEscalates),
		auditor,
		Config{CommandTimeout: timeout},
		logger.NewWithWriter("error", io.Discard),
		m,
	)
	return &fixture{d: d, clock: clock, auditor: auditor, metrics: m}
}

func (f *fixture) run(t *testing.T, line, user string, isGroup bool) string {
	t.Helper()
	cmd, ok := command.NewParser("").Parse(line)
	if !ok {
		t.Fatalf("Parse(%q) failed", line)
	}
	p := auth.Principal{UserID: user, Role: auth.RoleCustomer, IsGroupMember: isGroup}
	if user == owner {
		p.Role = auth.RoleOwner
	}
	conv := message.Conversation{ChatID: user + "@s.whatsapp.net", IsGroup: isGroup}
	reply := f.d.Dispatch(context.Background(), cmd, p, conv)
	if reply.Kind != message.KindText {
		t.Fatalf("reply kind = %v, want text", reply.Kind)
	}
	return reply.Text
}

func TestDispatch_Replies(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Second)

	tests := []struct {
		name    string
		line    string
		user    string
		isGroup bool
		want    string
	}{
		{"handler", "!ping", customer, false, "🏓 Pong!"},
		{"alias with args", "#say hello world", customer, false, "hello world"},
		{"unknown echoes prefix", "#frobnicate", customer, false, "❓ Unknown command. Type #help for available commands."},
		{"missing args", "!echo", customer, false, "📝 Usage: !echo <text>"},
		{"owner only", "!restart", customer, false, "👑 This command is only available to the bot owner."},
		{"owner allowed", "!restart", owner, false, "restarting"},
		{"group only", "!groupmenu", customer, false, "👥 This command only works in groups."},
		{"panic recovered", "!boom", customer, false, HandlerErrorText},
		{"error hidden", "!fail", customer, false, HandlerErrorText},
		{"backend down", "!down", customer, false, BackendUnavailableText},
		{"wrapped user message", "!explain", customer, false, "Quantity must be a number."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.run(t, tt.line, tt.user, tt.isGroup); got != tt.want {
				t.Errorf("Dispatch(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestDispatch_Cooldown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Second)

	if got := f.run(t, "!ping", customer, false); got != "🏓 Pong!" {
		t.Fatalf("first ping = %q", got)
	}
	f.clock.Advance(1500 * time.Millisecond)
	if got := f.run(t, ".ping", customer, false); got != "⏱️ Please wait 4s before using .ping again." {
		t.Errorf("second ping = %q", got)
	}
	// Another principal is unaffected
	if got := f.run(t, "!ping", owner, false); got != "🏓 Pong!" {
		t.Errorf("other user ping = %q", got)
	}
	f.clock.Advance(4 * time.Second)
	if got := f.run(t, "!ping", customer, false); got != "🏓 Pong!" {
		t.Errorf("ping after cooldown = %q", got)
	}
	if got := testutil.ToFloat64(f.metrics.AdmissionDenialsTotal.WithLabelValues("cooldown")); got != 1 {
		t.Errorf("admission denial metric = %v", got)
	}
}

func TestDispatch_UsageErrorKeepsCooldownFree(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Second)

	if got := f.run(t, "!track", customer, false); got != "📝 Usage: !track <order_id>" {
		t.Fatalf("track without id = %q", got)
	}
	if got := f.run(t, "!track A12", customer, false); got != "📦 On its way" {
		t.Errorf("track right after usage error = %q", got)
	}
	if got := f.run(t, "!track A12", customer, false); got != "⏱️ Please wait 5s before using !track again." {
		t.Errorf("second track = %q", got)
	}
}

func TestDispatch_Timeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 20*time.Millisecond)
	if got := f.run(t, "!slow", customer, false); got != HandlerErrorText {
		t.Errorf("slow = %q", got)
	}
	if got := f.auditor.outcomes(); len(got) != 1 || got[0] != "slow:"+OutcomeTimeout {
		t.Errorf("audit = %v", got)
	}
}

func TestDispatch_AuditsEveryAttempt(t *testing.T) {
	t.Parallel()
	f := newFixture(t, time.Second)

	f.run(t, "!ping", customer, false)
	f.run(t, "!ping", customer, false)
	f.run(t, "!nope", customer, false)
	f.run(t, "!restart", customer, false)
	f.run(t, "!echo", customer, false)
	f.run(t, "!boom", customer, false)

	want := []string{
		"ping:" + OutcomeOK,
		"ping:" + OutcomeCooldown,
		"nope:" + OutcomeUnknown,
		"restart:" + OutcomeDenied,
		"echo:" + OutcomeUsage,
		"boom:" + OutcomePanic,
	}
	got := f.auditor.outcomes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("audit outcomes = %v, want %v", got, want)
	}

	if v := testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("unknown", OutcomeUnknown)); v != 1 {
		t.Errorf("unknown command metric = %v", v)
	}
	if v := testutil.ToFloat64(f.metrics.AuthDenialsTotal.WithLabelValues(string(auth.ReasonNotOwner))); v != 1 {
		t.Errorf("auth denial metric = %v", v)
	}
}
