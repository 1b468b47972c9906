// Package server provides the public entry point for initializing the
// Sophia approval, publishing, and recovery core: store selection, the
// event bus, the approval/scheduler/recovery services, platform adapters,
// the HTTP API, and the chat-bot webhook.
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"net/http"

	"github.com/NomadonaTrip/sophia/internal/api"
	"github.com/NomadonaTrip/sophia/internal/api/handlers"
	"github.com/NomadonaTrip/sophia/internal/api/middleware"
	"github.com/NomadonaTrip/sophia/internal/approval"
	"github.com/NomadonaTrip/sophia/internal/bot"
	"github.com/NomadonaTrip/sophia/internal/clientrepo"
	"github.com/NomadonaTrip/sophia/internal/config"
	"github.com/NomadonaTrip/sophia/internal/events"
	"github.com/NomadonaTrip/sophia/internal/metrics"
	"github.com/NomadonaTrip/sophia/internal/platform"
	"github.com/NomadonaTrip/sophia/internal/ratelimit"
	"github.com/NomadonaTrip/sophia/internal/recovery"
	"github.com/NomadonaTrip/sophia/internal/scheduler"
	"github.com/NomadonaTrip/sophia/internal/store"
	"github.com/NomadonaTrip/sophia/internal/telemetry"
	"github.com/NomadonaTrip/sophia/pkg/contracts"
	"github.com/NomadonaTrip/sophia/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized Sophia core. Every field is exposed so a
// deploying main.go can reach into component internals for diagnostics or
// graceful shutdown — there is no enterprise override layer here, but the
// shape is kept because it is how the teacher this was adapted from lets
// its main.go compose a server.
type Server struct {
	Handler http.Handler

	Store     store.Store
	Bus       *events.Bus
	Approval  *approval.Service
	Scheduler *scheduler.Scheduler
	Recovery  *recovery.Service
	Limiter   *ratelimit.Limiter
	Clients   *clientrepo.Repository
	Notifier  *bot.Notifier
	BotHandler *bot.Handler
	Metrics   *metrics.Metrics

	Config *config.Config
	Port   int

	ledger *store.SchedulerLedger

	backgroundCancel context.CancelFunc
	shutdownTelemetry func(context.Context) error
}

// New builds a Server from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds a Server from an explicit configuration, so tests
// and alternate entry points can override defaults.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ledger, err := store.OpenSchedulerLedger(cfg.Scheduler.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open scheduler ledger: %w", err)
	}

	clients, err := clientrepo.New("")
	if err != nil {
		return nil, fmt.Errorf("open client repository: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New("sophia")
	}

	bus := events.NewBusWithLimits(cfg.Events.BufferSize, cfg.Events.MaxSubscribers)
	approvalSvc := approval.NewService(dataStore, bus)

	adapters := buildAdapters(cfg)

	limiter := ratelimit.New()

	sched := scheduler.New(dataStore, bus, approvalSvc, limiter, clients, adapters).
		WithLedger(ledger).
		WithMetrics(m)
	approvalSvc.WithScheduler(sched)

	recoverySvc := recovery.New(dataStore, bus, approvalSvc, adapters).WithMetrics(m)

	staleMonitor := scheduler.NewStaleMonitor(dataStore, bus).
		WithThreshold(time.Duration(cfg.Scheduler.StaleThresholdHours) * time.Hour)

	notifier := bot.NewNotifier(cfg.Bot.Token, cfg.Bot.ChatID)
	botHandler := bot.NewHandler(approvalSvc, recoverySvc, sched)

	h := handlers.New(dataStore, approvalSvc, sched, recoverySvc, bus, "uploads", cfg.Operator.BaseURL+"/uploads")
	auth := middleware.NewOperatorAuth()
	router := api.NewRouter(cfg, h, auth)

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/bot/webhook", botHandler)

	bgCtx, cancel := context.WithCancel(context.Background())
	go sched.Start(bgCtx)
	go staleMonitor.Start(bgCtx)
	go relayToNotifier(bgCtx, bus, notifier)

	return &Server{
		Handler:           mux,
		Store:             dataStore,
		Bus:               bus,
		Approval:          approvalSvc,
		Scheduler:         sched,
		Recovery:          recoverySvc,
		Limiter:           limiter,
		Clients:           clients,
		Notifier:          notifier,
		BotHandler:        botHandler,
		Metrics:           m,
		Config:            cfg,
		Port:              cfg.Port,
		ledger:            ledger,
		backgroundCancel:  cancel,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// openStore selects MemoryStore or PostgresStore from DB_PATH's scheme.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if strings.HasPrefix(cfg.Database.DBPath, "postgres://") || strings.HasPrefix(cfg.Database.DBPath, "postgresql://") {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DBPath)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("postgres store initialized")
		return pg, nil
	}
	log.Info().Msg("in-memory store initialized")
	return store.NewMemoryStore(), nil
}

func buildAdapters(cfg *config.Config) map[models.Platform]contracts.PlatformAdapter {
	adapters := make(map[models.Platform]contracts.PlatformAdapter)
	if cfg.Platforms.FacebookPageID != "" && cfg.Platforms.FacebookAccessToken != "" {
		adapters[models.PlatformFacebook] = platform.NewFacebookAdapter(cfg.Platforms.FacebookPageID, cfg.Platforms.FacebookAccessToken)
	}
	if cfg.Platforms.InstagramBusinessAccount != "" && cfg.Platforms.InstagramAccessToken != "" {
		adapters[models.PlatformInstagram] = platform.NewInstagramAdapter(cfg.Platforms.InstagramBusinessAccount, cfg.Platforms.InstagramAccessToken)
	}
	return adapters
}

// relayToNotifier subscribes the bot notifier to the bus's reserved
// empty-client-ID channel, which receives every event regardless of
// client (see Bus.Publish), and renders each as a chat message.
func relayToNotifier(ctx context.Context, bus *events.Bus, notifier *bot.Notifier) {
	ch, err := bus.Subscribe("")
	if err != nil {
		log.Warn().Err(err).Msg("bot notifier: failed to subscribe to event bus")
		return
	}
	defer bus.Unsubscribe("", ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			notifier.Send(ctx, evt.Type, evt.Payload)
		}
	}
}

// Shutdown stops background goroutines and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}
	if s.ledger != nil {
		s.ledger.Close()
	}
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
