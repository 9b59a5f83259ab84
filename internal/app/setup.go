package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/analyzer"
	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/mirror"
	"github.com/mirrordesk/perp-mirror/internal/notify"
	"github.com/mirrordesk/perp-mirror/internal/orderhash"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/snapshot"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/supervisor"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/internal/venue/binancesrc"
	"github.com/mirrordesk/perp-mirror/internal/venue/gatemirror"
	"github.com/mirrordesk/perp-mirror/pkg/cache"
	"github.com/mirrordesk/perp-mirror/pkg/config"
	"github.com/mirrordesk/perp-mirror/pkg/healthprobe"
	"github.com/mirrordesk/perp-mirror/pkg/httpserver"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// Cache TTLs. RecentlyProcessed only needs to cover scan-tick jitter;
// OrderHashes must outlive the venue's listing propagation delay;
// RecentlyFilled spans the fill-attribution window.
const (
	recentlyProcessedTTL = 15 * time.Second
	orderHashesTTL       = 3 * time.Minute
	recentlyFilledTTL    = 5 * time.Minute
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		clock:         venue.RealClock{},
		ctx:           ctx,
		cancel:        cancel,
	}

	a.source = setupSourceClient(cfg, logger)
	a.mirror = setupMirrorClient(cfg, logger)
	a.notifier = setupNotifier(cfg, a.clock, logger)

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	a.store = store

	recently, hashes, recentlyFilled, err := setupCaches(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup caches: %w", err)
	}
	a.caches = []*cache.RistrettoSet{recently, hashes, recentlyFilled}

	a.controller = controller.New(&controller.Config{
		EnabledDefault: cfg.EnabledDefault,
		RatioDefault:   cfg.RatioDefault,
		Logger:         logger,
		OnEnable:       a.handleEnable,
	})

	a.prices = pricetracker.New(&pricetracker.Config{
		Source: a.source,
		Mirror: a.mirror,
		Logger: logger,
	})
	stats := mirror.NewStats()
	a.guard = marginguard.New(&marginguard.Config{
		Mirror:   a.mirror,
		Notifier: a.notifier,
		Clock:    a.clock,
		Stats:    stats,
		Contract: cfg.MirrorContract,
		Leverage: types.DefaultLeverage,
		Logger:   logger,
	})

	a.supervisor = setupEngine(cfg, a, stats, recently, hashes, recentlyFilled)

	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Status:        a.supervisor,
		Controller:    a.controller,
		Store:         a.store,
	})

	return a, nil
}

func setupSourceClient(cfg *config.Config, logger *zap.Logger) venue.SourceClient {
	return binancesrc.New(&binancesrc.Config{
		APIKey:    cfg.SourceAPIKey,
		APISecret: cfg.SourceAPISecret,
		Contract:  cfg.SourceContract,
		Logger:    logger,
	})
}

func setupMirrorClient(cfg *config.Config, logger *zap.Logger) venue.MirrorClient {
	return gatemirror.New(&gatemirror.Config{
		BaseURL:   cfg.MirrorBaseURL,
		APIKey:    cfg.MirrorAPIKey,
		APISecret: cfg.MirrorAPISecret,
		Contract:  cfg.MirrorContract,
		Logger:    logger,
	})
}

func setupNotifier(cfg *config.Config, clock venue.Clock, logger *zap.Logger) venue.Notifier {
	if cfg.NotifyBotToken == "" || cfg.NotifyChatID == "" {
		logger.Info("notifications-disabled",
			zap.String("reason", "bot token or chat id not configured"))
		return nil
	}
	telegram := notify.NewTelegram(&notify.TelegramConfig{
		BotToken: cfg.NotifyBotToken,
		ChatID:   cfg.NotifyChatID,
		Logger:   logger,
	})
	return notify.NewRateLimited(telegram, clock, logger)
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.StorageMode == "postgres" {
		store, err := storage.NewPostgresStore(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		return store, nil
	}
	return storage.NewConsoleStore(logger), nil
}

func setupCaches(logger *zap.Logger) (recently, hashes, recentlyFilled *cache.RistrettoSet, err error) {
	recently, err = cache.NewRistrettoSet(&cache.RistrettoConfig{
		Name: "recently_processed", TTL: recentlyProcessedTTL, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	hashes, err = cache.NewRistrettoSet(&cache.RistrettoConfig{
		Name: "order_hashes", TTL: orderHashesTTL, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	recentlyFilled, err = cache.NewRistrettoSet(&cache.RistrettoConfig{
		Name: "recently_filled", TTL: recentlyFilledTTL, Logger: logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return recently, hashes, recentlyFilled, nil
}

func setupEngine(cfg *config.Config, a *App, stats *mirror.Stats, recently, hashes, recentlyFilled cache.TTLSet) *supervisor.Supervisor {
	scheme := orderhash.New()
	if len(cfg.HashOffsetFractions) > 0 {
		scheme = orderhash.NewFractional(cfg.HashOffsetFractions)
	}

	records := mirror.NewRecords()
	startup := mirror.EmptyStartupSet()
	locks := mirror.NewKeyedLocks()

	placer := mirror.NewPlacer(&mirror.PlacerConfig{
		Source:     a.source,
		Mirror:     a.mirror,
		Guard:      a.guard,
		Controller: a.controller,
		Prices:     a.prices,
		Notifier:   a.notifier,

		Records: records,
		Locks:   locks,
		Startup: startup,
		Stats:   stats,

		Hashes:            hashes,
		RecentlyProcessed: recently,
		Scheme:            scheme,

		MirrorContract:   cfg.MirrorContract,
		ContractUnit:     cfg.ContractUnit,
		MinimumMarginUSD: cfg.MinimumMarginUSD,
		Logger:           a.logger,
	})
	filler := mirror.NewFiller(&mirror.FillerConfig{
		Mirror:   a.mirror,
		Guard:    a.guard,
		Prices:   a.prices,
		Clock:    a.clock,
		Notifier: a.notifier,

		Records: records,
		Locks:   locks,
		Stats:   stats,

		MirrorContract: cfg.MirrorContract,
		Logger:         a.logger,
	})
	syncer := mirror.NewSyncer(&mirror.SyncerConfig{
		Mirror:   a.mirror,
		Guard:    a.guard,
		Clock:    a.clock,
		Notifier: a.notifier,

		Records: records,
		Stats:   stats,
		Store:   a.store,

		MirrorContract: cfg.MirrorContract,
		Logger:         a.logger,
	})
	reconciler := mirror.NewReconciler(&mirror.ReconcilerConfig{
		Source:   a.source,
		Mirror:   a.mirror,
		Guard:    a.guard,
		Notifier: a.notifier,

		Startup: startup,
		Stats:   stats,
		Store:   a.store,

		SourceContract: cfg.SourceContract,
		MirrorContract: cfg.MirrorContract,
		Logger:         a.logger,
	})
	anlz := analyzer.New(&analyzer.Config{
		Source:         a.source,
		Prices:         a.prices,
		RecentlyFilled: recentlyFilled,
		Contract:       cfg.SourceContract,
		CloseThreshold: cfg.CloseReachThreshold,
		Logger:         a.logger,
	})

	return supervisor.New(&supervisor.Config{
		Source:   a.source,
		Mirror:   a.mirror,
		Clock:    a.clock,
		Notifier: a.notifier,

		Controller: a.controller,
		Prices:     a.prices,
		Guard:      a.guard,
		Snapshots:  snapshot.NewTracker(),
		Analyzer:   anlz,

		Placer:     placer,
		Filler:     filler,
		Syncer:     syncer,
		Reconciler: reconciler,

		Records: records,
		Startup: startup,
		Stats:   stats,
		Scheme:  scheme,

		Sweepers: sweepers(a.caches),
		Store:    a.store,

		SourceContract: cfg.SourceContract,
		MirrorContract: cfg.MirrorContract,

		TriggerScanInterval: cfg.TriggerScanInterval,
		PriceRefreshEvery:   cfg.PriceRefreshEvery,
		PositionSyncEvery:   cfg.PositionSyncEvery,
		MarginGuardEvery:    cfg.MarginGuardEvery,

		Logger: a.logger,
	})
}

func sweepers(sets []*cache.RistrettoSet) []supervisor.Sweeper {
	out := make([]supervisor.Sweeper, 0, len(sets))
	for _, s := range sets {
		out = append(out, s)
	}
	return out
}

// handleEnable re-initializes engine state when the operator flips the
// mirror back on after a pause.
func (a *App) handleEnable() {
	if a.supervisor == nil {
		return
	}
	a.logger.Info("mirror-re-enabled-reinitializing")
	// Replay retries can take tens of seconds; do not hold the caller
	// (usually an HTTP request) for that long.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.supervisor.Reinitialize(a.ctx)
	}()
}
