package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/dispatchcore/ai/core/llm"
	"github.com/hrygo/dispatchcore/ai/dispatch"
	"github.com/hrygo/dispatchcore/ai/events"
	"github.com/hrygo/dispatchcore/ai/memory"
	"github.com/hrygo/dispatchcore/ai/metrics"
	"github.com/hrygo/dispatchcore/ai/quality"
	"github.com/hrygo/dispatchcore/ai/routing"
	"github.com/hrygo/dispatchcore/ai/stats"
	"github.com/hrygo/dispatchcore/internal/profile"
	"github.com/hrygo/dispatchcore/plugin/webhook"
	"github.com/hrygo/dispatchcore/server"
	apiv1 "github.com/hrygo/dispatchcore/server/router/api/v1"
	"github.com/hrygo/dispatchcore/store"
	"github.com/hrygo/dispatchcore/store/db"
)

const persisterCloseTimeout = 5 * time.Second

// app holds every long-lived component of a running instance.
type app struct {
	profile   *profile.Profile
	logger    *slog.Logger
	store     *store.Store
	bus       *events.Bus
	persister *stats.Persister
	sweeper   *memory.Sweeper
	server    *server.Server
}

// newApp opens the store and wires the dispatch core behind the HTTP server.
func newApp(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*app, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, fmt.Errorf("migrate %s store: %w", p.Driver, err)
	}

	bus := events.NewBus()
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	box := memory.NewBox(storeInstance, memory.Config{
		MaxHistoryEvents: p.MaxHistoryEvents,
		MaxTokenEstimate: p.MaxContextTokens,
		StaleAfter:       time.Duration(p.StaleSessionHours) * time.Hour,
	},
		memory.WithPublisher(bus),
		memory.WithObserver(exporter),
		memory.WithLogger(logger))
	box.Subscribe(bus)

	persister := stats.NewPersister(storeInstance, p.UsageQueueSize, logger)
	budget := stats.NewBudgetManager(storeInstance, persister, stats.DefaultConfig(), logger)
	if err := budget.Preload(ctx); err != nil {
		logger.Warn("Bootstrap: usage preload failed", "error", err)
	}
	alerts := stats.NewBudgetAlertService(stats.NewBusNotifier(bus), logger)
	if p.AlertWebhookURL != "" {
		webhook.NewNotifier(p.AlertWebhookURL, nil).Subscribe(bus)
	}

	clients, err := llm.NewRegistryFromProfile(p, nil, logger)
	if err != nil {
		_ = persister.Close(persisterCloseTimeout)
		_ = storeInstance.Close()
		return nil, err
	}

	controller, err := dispatch.NewController(dispatch.Deps{
		Router:  routing.NewService(routing.DefaultConfig()),
		Clients: clients,
		Memory:  box,
		Budget:  budget,
		Gate:    quality.NewGate(quality.DefaultConfig()),
		Alerts:  alerts,
		Metrics: exporter,
		Logger:  logger,
	}, dispatchConfig(p))
	if err != nil {
		_ = persister.Close(persisterCloseTimeout)
		_ = storeInstance.Close()
		return nil, err
	}

	api := apiv1.NewAPIV1Service(p, controller, box, budget, bus)
	s, err := server.NewServer(ctx, p, api, exporter)
	if err != nil {
		_ = persister.Close(persisterCloseTimeout)
		_ = storeInstance.Close()
		return nil, err
	}

	logger.Info("Bootstrap: dispatch core ready",
		"driver", p.Driver,
		"providers", clients.IDs())

	return &app{
		profile:   p,
		logger:    logger,
		store:     storeInstance,
		bus:       bus,
		persister: persister,
		sweeper:   memory.NewSweeper(box, p.MemorySweepSchedule, 0, logger),
		server:    s,
	}, nil
}

func dispatchConfig(p *profile.Profile) dispatch.Config {
	cfg := dispatch.DefaultConfig()
	if p.ProviderTimeoutSeconds > 0 {
		cfg.ProviderTimeout = time.Duration(p.ProviderTimeoutSeconds) * time.Second
	}
	if p.ProviderMaxRetries > 0 {
		cfg.Retry.MaxAttempts = p.ProviderMaxRetries
	}
	if p.MaxContextTokens > 0 {
		cfg.ContextTokenBudget = p.MaxContextTokens
	}
	cfg.MaxOutputTokens = p.MaxOutputTokens

	cfg.RateLimits = make(map[string]float64)
	for id, provider := range p.Providers {
		if provider.RateLimit > 0 {
			cfg.RateLimits[id] = provider.RateLimit
		}
	}
	return cfg
}

// close flushes pending usage and waits for in-flight event handlers before
// closing the store.
func (a *app) close() {
	a.sweeper.Stop()
	if err := a.persister.Close(persisterCloseTimeout); err != nil {
		a.logger.Warn("Bootstrap: usage flush incomplete", "error", err)
	}
	a.bus.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Bootstrap: store close failed", "error", err)
	}
}
