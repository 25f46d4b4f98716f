// Package core wires the pipeline: configuration, logging, simulation, order
// books, analytics and persistence.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"marketpipe/internal/analytics"
	"marketpipe/internal/config"
	"marketpipe/internal/ingest"
	"marketpipe/internal/logging"
	"marketpipe/internal/market"
	"marketpipe/internal/orderbook"
	"marketpipe/internal/runtime/supervisor"
	"marketpipe/internal/storage"
)

// App is the assembled pipeline.
type App struct {
	cfg      *config.Config
	manager  *config.Manager
	facility *logging.Facility
	log      *slog.Logger

	books     *orderbook.Manager
	simulator *ingest.Simulator
	handler   *ingest.Handler
	engine    *analytics.Engine
	store     storage.Store
	cron      *cron.Cron
}

// New loads the settings file, brings up logging and builds every component.
// A broken logging document does not abort startup: the pipeline falls back
// to the default console wiring and reports the failure through it.
func New(configPath string) (*App, error) {
	manager := config.NewManager(configPath, slog.Default())
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	facility, logErr := logging.Load(cfg.LogConfig)
	if logErr != nil {
		facility = logging.New()
	}
	log := facility.Logger("market_data_pipeline")
	if logErr != nil {
		log.Error("logging config failed, using console fallback",
			"path", cfg.LogConfig, "error", logErr)
	}
	manager.SetLogger(facility.Logger("market_data_pipeline.config"))

	app := &App{
		cfg:      cfg,
		manager:  manager,
		facility: facility,
		log:      log,
		books:    orderbook.NewManager(),
	}
	if err := app.build(); err != nil {
		_ = facility.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build() error {
	cfg := a.cfg

	updateInterval, err := cfg.UpdateInterval()
	if err != nil {
		return err
	}
	metricsInterval, err := cfg.MetricsInterval()
	if err != nil {
		return err
	}

	a.simulator = ingest.NewSimulator(ingest.SimulatorOptions{
		Symbols:       cfg.MarketData.Symbols,
		InitialPrices: cfg.Simulator.InitialPrices,
		Volatility:    cfg.Simulator.Volatility,
		Interval:      updateInterval,
	}, a.facility.Logger("market_data_pipeline.simulator"))

	a.handler = ingest.NewHandler(ingest.HandlerOptions{
		Symbols:      cfg.MarketData.Symbols,
		BufferSize:   cfg.MarketData.BufferSize,
		GapThreshold: cfg.MarketData.SequenceGapThreshold,
	}, a.books, a.facility.Logger("market_data_pipeline.feed"))

	a.engine = analytics.NewEngine(analytics.EngineOptions{
		WindowSize: cfg.Analytics.WindowSize,
		Interval:   metricsInterval,
		Depth:      cfg.MarketData.MaxDepth,
	}, a.books, a.handler.Buffer(), a.facility.Logger("market_data_pipeline.analytics"))

	if cfg.Storage != nil {
		busy, err := cfg.Storage.BusyTimeoutDur()
		if err != nil {
			return err
		}
		a.store, err = storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, a.facility.Logger("market_data_pipeline.storage"))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
	}
	return nil
}

// Run starts every component and blocks until ctx ends or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("market data pipeline starting",
		"symbols", a.cfg.MarketData.Symbols, "storage", a.store != nil)

	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	updates := make(chan market.Update, a.cfg.MarketData.BufferSize)

	sup.Go("simulator", func(ctx context.Context) error {
		return a.simulator.Run(ctx, updates)
	})
	sup.Go("feed-handler", func(ctx context.Context) error {
		return a.handler.Run(ctx, updates)
	})
	sup.Go("analytics", func(ctx context.Context) error {
		return a.engine.Run(ctx)
	})
	sup.Go("config-watch", func(ctx context.Context) error {
		return a.manager.Watch(ctx)
	})
	sup.Go0("config-reload", func(ctx context.Context) {
		a.watchReloads(ctx)
	})

	cronErr := a.startCron(sup.Context())
	if cronErr != nil {
		sup.Cancel()
	}

	err := sup.Wait(context.Background())
	if cronErr != nil {
		err = cronErr
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.shutdown(stopCtx)
	return err
}

// startCron schedules the periodic jobs: the book health check and metrics
// persistence.
func (a *App) startCron(ctx context.Context) error {
	monitor, err := a.cfg.MonitorIntervalDur()
	if err != nil {
		return err
	}
	metrics, err := a.cfg.MetricsInterval()
	if err != nil {
		return err
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc("@every "+monitor.String(), func() {
		a.handler.CheckAllBooks()
		a.logProgress()
	}); err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}
	if a.store != nil {
		if _, err := c.AddFunc("@every "+metrics.String(), func() {
			a.persist(ctx)
		}); err != nil {
			return fmt.Errorf("schedule persistence: %w", err)
		}
	}
	c.Start()
	a.cron = c
	return nil
}

// watchReloads re-applies the logging configuration when the settings file
// changes. A broken logging document is rejected; the previous wiring stays
// in effect.
func (a *App) watchReloads(ctx context.Context) {
	sub := a.manager.Subscribe(1)
	defer a.manager.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyLogging(cfg.LogConfig)
		}
	}
}

func (a *App) applyLogging(path string) {
	lc, err := logging.ParseFile(path)
	if err != nil {
		a.log.Error("logging config rejected, keeping previous setup", "path", path, "error", err)
		return
	}
	if err := a.facility.Apply(lc); err != nil {
		a.log.Error("logging config failed to apply, keeping previous setup", "path", path, "error", err)
		return
	}
	a.log.Info("logging configuration reloaded", "path", path)
}

// persist writes the latest metrics and a book snapshot per symbol.
func (a *App) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, sym := range a.books.Symbols() {
		if m, ok := a.engine.Latest(sym); ok {
			if err := a.store.AppendMetrics(ctx, m); err != nil {
				a.log.Warn("metrics persist failed", "symbol", sym, "error", err)
			}
		}
		if b := a.books.Get(sym); b != nil {
			if err := a.store.AppendSnapshot(ctx, b.Snapshot(a.cfg.MarketData.MaxDepth)); err != nil {
				a.log.Warn("snapshot persist failed", "symbol", sym, "error", err)
			}
		}
	}
}

func (a *App) logProgress() {
	processed, dropped, gaps := a.handler.Stats()
	a.log.Info("pipeline status",
		"processed", processed, "dropped", dropped, "gaps", gaps,
		"books", len(a.books.Symbols()))
}

func (a *App) shutdown(ctx context.Context) {
	if a.cron != nil {
		select {
		case <-a.cron.Stop().Done():
		case <-ctx.Done():
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", "error", err)
		}
	}
	a.log.Info("market data pipeline stopped")
	_ = a.facility.Close()
}
