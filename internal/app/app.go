// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/garyellow/whatsapp-commerce-bot/internal/admission"
	"github.com/garyellow/whatsapp-commerce-bot/internal/audit"
	"github.com/garyellow/whatsapp-commerce-bot/internal/auth"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backend"
	"github.com/garyellow/whatsapp-commerce-bot/internal/backup"
	"github.com/garyellow/whatsapp-commerce-bot/internal/bot"
	"github.com/garyellow/whatsapp-commerce-bot/internal/buildinfo"
	"github.com/garyellow/whatsapp-commerce-bot/internal/command"
	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	"github.com/garyellow/whatsapp-commerce-bot/internal/delivery"
	"github.com/garyellow/whatsapp-commerce-bot/internal/dispatch"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/message"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/admin"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/group"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/info"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/merchant"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/owner"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/shop"
	"github.com/garyellow/whatsapp-commerce-bot/internal/modules/usage"
	"github.com/garyellow/whatsapp-commerce-bot/internal/nlu"
	"github.com/garyellow/whatsapp-commerce-bot/internal/r2client"
	"github.com/garyellow/whatsapp-commerce-bot/internal/ratelimit"
	"github.com/garyellow/whatsapp-commerce-bot/internal/retryqueue"
	"github.com/garyellow/whatsapp-commerce-bot/internal/sentry"
	"github.com/garyellow/whatsapp-commerce-bot/internal/storage"
	"github.com/garyellow/whatsapp-commerce-bot/internal/webhook"
	"github.com/garyellow/whatsapp-commerce-bot/internal/whatsapp"
)

// auditBuffer is the number of command records queued for the writer.
const auditBuffer = 256

// session is the chat transport as seen by health checks.
type session interface {
	Status() (healthy bool, detail string)
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg       *config.Config
	logger    *logger.Logger
	db        *storage.DB
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	startedAt time.Time

	wa         *whatsapp.Client
	session    session
	nlu        *nlu.Service
	ceiling    *ratelimit.KeyedLimiter
	notices    *ratelimit.KeyedLimiter
	admission  *admission.Controller
	audit      *audit.Emitter
	queue      *retryqueue.Queue
	selections *bot.Selections
	sequencer  *bot.Sequencer
	webhook    *webhook.Handler
	server     *http.Server

	wg sync.WaitGroup // Background jobs
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
		BetterStackLevel:    cfg.BetterStackLevel,
	})
	log = log.WithField("service", "whatsapp-commerce-bot")
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}
	// Package-level slog calls pick up user, chat and request IDs from ctx.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.String()).Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "wabot_remote_log_dropped_total",
			Help: "Log records that never reached Better Stack",
		}, func() float64 { return float64(log.RemoteDropped()) }),
	)
	m := metrics.New(registry)

	a := &Application{
		cfg:       cfg,
		logger:    log,
		db:        db,
		metrics:   m,
		registry:  registry,
		startedAt: time.Now(),
	}
	if err := a.wire(ctx); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}

	log.Info("Initialization complete")
	return a, nil
}

// wire builds the command pipeline, the transport and the HTTP surface.
func (a *Application) wire(ctx context.Context) error {
	cfg, log, m := a.cfg, a.logger, a.metrics

	policy, err := auth.ParseMerchantPolicy(cfg.Bot.MerchantEscalation)
	if err != nil {
		return fmt.Errorf("merchant escalation: %w", err)
	}
	gate := auth.NewGate(cfg.Bot.OwnerPhones, cfg.Bot.AdminPhones, policy)
	api := backend.New(cfg.Backend, log, m)
	resolver := auth.NewResolver(gate, api, a.db, cfg.RoleCacheTTL, log, m)
	parser := command.NewParser(cfg.Bot.Prefixes)
	prefix := parser.Primary()

	wa, err := whatsapp.New(ctx, cfg.WhatsApp, cfg.DataDir, cfg.Bot.Footer, log, m)
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}
	a.wa, a.session = wa, wa

	a.nlu, err = nlu.NewService(ctx, cfg.LLM, m, log)
	if err != nil {
		log.WithError(err).Warn("LLM classifier initialization failed, keyword intents only")
		a.nlu, _ = nlu.NewService(ctx, config.LLMConfig{}, m, log)
	}
	if a.nlu.LLMEnabled() {
		log.Info("LLM intent classification enabled")
	}

	a.ceiling = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "message",
		WindowLimit:   cfg.Bot.MessageRateLimit,
		Window:        cfg.Bot.MessageRateWindow,
		CleanupPeriod: cfg.Bot.CooldownSweepInterval,
		Metrics:       m,
	})
	a.notices = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "throttle_notice",
		WindowLimit:   1,
		Window:        cfg.Bot.MessageRateWindow,
		CleanupPeriod: cfg.Bot.CooldownSweepInterval,
	})

	// A nil *backup.Service must not reach the owner handler as a non-nil
	// interface.
	var backups owner.Backuper
	if cfg.R2.Enabled() {
		store, err := r2client.New(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("r2: %w", err)
		}
		backups = backup.New(a.db, store, backup.Config{Prefix: cfg.R2.BackupPrefix, Keep: cfg.R2.BackupKeep}, log)
		log.WithField("bucket", cfg.R2.BucketName).Info("R2 backups enabled")
	}

	infoHandler := info.NewHandler(gate, prefix)
	reg, err := modules.NewRegistry(infoHandler,
		shop.NewHandler(api, a.db, prefix, log),
		usage.NewHandler(a.ceiling, a.nlu, prefix),
		merchant.NewHandler(api, prefix, log),
		group.NewHandler(wa, prefix),
		admin.NewHandler(api, prefix, a, log),
		owner.NewHandler(backups, a.db, log),
	)
	if err != nil {
		return fmt.Errorf("command registry: %w", err)
	}

	a.admission = admission.New()
	a.audit = audit.NewEmitter(a.db, log, m, auditBuffer)
	dispatcher := dispatch.New(reg, a.admission, gate, a.audit, dispatch.Config{CommandTimeout: cfg.Bot.CommandTimeout}, log, m)

	a.queue = retryqueue.New(retryqueue.Config{
		Capacity:    cfg.Bot.RetryQueueCapacity,
		MaxAttempts: cfg.Bot.RetryQueueMaxAttempts,
		SendTimeout: config.TransportSend,
	}, log, m)
	a.selections = bot.NewSelections(config.SelectionTTL)
	sender := delivery.New(wa, a.queue, delivery.Config{
		Footer:      cfg.Bot.Footer,
		SendTimeout: config.TransportSend,
		Pacer:       rate.NewLimiter(rate.Limit(cfg.Bot.SendRatePerSecond), int(cfg.Bot.SendBurst)),
		OnFallback:  a.selections.Remember,
	}, log, m)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Parser:     parser,
		Limiter:    a.ceiling,
		Notices:    a.notices,
		Resolver:   resolver,
		Dispatcher: dispatcher,
		Sender:     sender,
		Intents:    a.nlu,
		Selections: a.selections,
		Welcome:    infoHandler.Welcome,
		RateLimit:  cfg.Bot.MessageRateLimit,
		RateWindow: cfg.Bot.MessageRateWindow,
		Logger:     log,
		Metrics:    m,
	})
	a.sequencer = bot.NewSequencer(processor.Process, config.ConversationIdle, log)
	wa.OnMessage(func(in message.Inbound) {
		a.sequencer.Submit(in)
	})

	a.webhook = webhook.NewHandler(sender, prefix, log,
		webhook.WithSecret(cfg.WebhookSecret),
		webhook.WithMetrics(m),
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gzhttp.GzipHandler(a.router()),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}
	return nil
}

// router mounts every HTTP route.
func (a *Application) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if sentry.IsEnabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(securityHeadersMiddleware())
	r.Use(loggingMiddleware(a.logger))
	a.registerRoutes(r)
	return r
}

// Run connects to WhatsApp, starts the HTTP server and background jobs,
// and blocks until SIGINT or SIGTERM.
//
// Shutdown order:
//  1. Cancel context so background jobs stop
//  2. Wait for background jobs
//  3. Stop HTTP, drain webhook deliveries and conversations
//  4. Close the transport, flush audit records, close the database
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startHTTPServer()
	if err := a.wa.Connect(ctx); err != nil {
		a.logger.WithError(err).Error("WhatsApp connection failed")
		cancel()
		return errors.Join(err, a.shutdown())
	}
	a.startBackgroundJobs(ctx)

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown stops intake first so in-flight replies can still be sent, then
// releases resources.
func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Waiting for webhook deliveries...")
	if err := a.webhook.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
	}

	a.logger.Info("Waiting for conversations to finish...")
	if err := a.sequencer.Close(ctx); err != nil {
		a.logger.WithError(err).Warn("Conversation workers shutdown timeout")
	}

	a.closeResources(ctx)
	a.logger.Info("Shutdown complete")
	return nil
}

// closeResources releases whatever wire managed to create.
func (a *Application) closeResources(ctx context.Context) {
	if a.wa != nil {
		if err := a.wa.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "whatsapp").Error("Component close error")
		}
	}
	if a.queue != nil {
		if pending := a.queue.Close(); len(pending) > 0 {
			a.logger.WithField("pending", len(pending)).Warn("Retry queue dropped on shutdown")
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(ctx); err != nil {
			a.logger.WithError(err).WithField("component", "audit").Warn("Audit flush timeout")
		}
	}
	if a.ceiling != nil {
		a.ceiling.Stop()
	}
	if a.notices != nil {
		a.notices.Stop()
	}
	a.nlu.Close()

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}

	sentry.Flush(2 * time.Second)
	if err := a.logger.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
}
