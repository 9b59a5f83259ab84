// Package supervisor owns the long-running reconciliation fibers: the
// trigger scan, the fill and cancel retry queues, position sync, the
// margin guard cadence, cache sweeps, and the daily report. A crashing
// fiber is logged and restarted; it never takes down its peers.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/analyzer"
	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/mirror"
	"github.com/mirrordesk/perp-mirror/internal/orderhash"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/snapshot"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// Sweeper is the cache maintenance hook run by the sweep fiber.
type Sweeper interface {
	Sweep()
}

type Config struct {
	Source   venue.SourceClient
	Mirror   venue.MirrorClient
	Clock    venue.Clock
	Notifier venue.Notifier

	Controller *controller.Controller
	Prices     *pricetracker.Tracker
	Guard      *marginguard.Guard
	Snapshots  *snapshot.Tracker
	Analyzer   *analyzer.Analyzer

	Placer     *mirror.Placer
	Filler     *mirror.Filler
	Syncer     *mirror.Syncer
	Reconciler *mirror.Reconciler

	Records *mirror.Records
	Startup *mirror.StartupSet
	Stats   *mirror.Stats
	Scheme  *orderhash.Scheme

	Sweepers []Sweeper

	// Store receives the audit trail; nil disables persistence.
	Store storage.Store

	SourceContract string
	MirrorContract string

	TriggerScanInterval time.Duration
	PriceRefreshEvery   time.Duration
	PositionSyncEvery   time.Duration
	MarginGuardEvery    time.Duration

	Logger *zap.Logger
}

type Supervisor struct {
	cfg    *Config
	logger *zap.Logger

	mu sync.Mutex
	// pendingFills are filled source orders whose mirror execution has
	// not succeeded yet; the fill queue drains them.
	pendingFills map[string]struct{}
	// pendingCancels are canceled source orders whose mirror cancel has
	// not succeeded yet; the cancel scan retries them.
	pendingCancels map[string]struct{}
	// uncertain are disappeared orders awaiting a decisive price pair.
	uncertain map[string]*types.TriggerOrder
	// replayQueue holds pre-existing unmirrored source triggers found at
	// init, consumed by the startup replay.
	replayQueue []*types.TriggerOrder

	startedAt time.Time
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

func New(cfg *Config) *Supervisor {
	return &Supervisor{
		cfg:            cfg,
		logger:         cfg.Logger.Named("supervisor"),
		pendingFills:   make(map[string]struct{}),
		pendingCancels: make(map[string]struct{}),
		uncertain:      make(map[string]*types.TriggerOrder),
	}
}

// Start initializes startup state and launches all fibers. It returns
// once the fibers are running; Stop tears them down.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startedAt = s.cfg.Clock.Now()

	if err := s.initStartupState(ctx); err != nil {
		cancel()
		return fmt.Errorf("startup state: %w", err)
	}
	s.replayPreexisting(ctx)

	fibers := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"price_refresh", s.cfg.PriceRefreshEvery, func(ctx context.Context) { s.cfg.Prices.Refresh(ctx) }},
		{"trigger_scan", s.cfg.TriggerScanInterval, s.scanTriggers},
		{"fill_queue_drain", s.cfg.TriggerScanInterval, s.drainFillQueue},
		{"cancel_scan", 10 * time.Second, s.retryCancels},
		{"position_sync", s.cfg.PositionSyncEvery, s.syncPositions},
		{"margin_guard", s.cfg.MarginGuardEvery, func(ctx context.Context) { s.cfg.Guard.Ensure(ctx) }},
		{"hash_cache_sweep", time.Minute, func(context.Context) { s.sweepCaches() }},
	}
	for _, fiber := range fibers {
		s.wg.Add(1)
		go s.runFiber(ctx, fiber.name, fiber.interval, fiber.run)
	}
	s.wg.Add(1)
	go s.runDailyReport(ctx)

	s.logger.Info("supervisor-started",
		zap.Duration("trigger-scan-interval", s.cfg.TriggerScanInterval),
		zap.Int("fibers", len(fibers)+1))

	if s.cfg.Notifier != nil {
		if err := s.cfg.Notifier.Send(ctx, "lifecycle", "mirror engine started"); err != nil {
			s.logger.Warn("startup-notify-failed", zap.Error(err))
		}
	}
	return nil
}

// Stop cancels all fibers, waits for them to drain, and emits the final
// report.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	snap := s.cfg.Stats.Snapshot()
	s.logger.Info("supervisor-stopped",
		zap.Int64("successful-mirrors", snap.SuccessfulMirrors),
		zap.Int64("failed-mirrors", snap.FailedMirrors),
		zap.Int64("cancels", snap.Cancels),
		zap.Int64("immediate-fills", snap.ImmediateFills))

	if s.cfg.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		text := fmt.Sprintf("mirror engine stopped: %d mirrored, %d filled, %d canceled, %d failed",
			snap.SuccessfulMirrors, snap.ImmediateFills, snap.Cancels, snap.FailedMirrors)
		if err := s.cfg.Notifier.Send(ctx, "lifecycle", text); err != nil {
			s.logger.Warn("shutdown-notify-failed", zap.Error(err))
		}
	}
}

// runFiber ticks fn on the interval until ctx is done, restarting after
// a panic.
func (s *Supervisor) runFiber(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		s.fiberLoop(ctx, name, interval, fn)
	}
}

func (s *Supervisor) fiberLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			fiberPanicsTotal.WithLabelValues(name).Inc()
			s.logger.Error("fiber-panic",
				zap.String("fiber", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fiberTicksTotal.WithLabelValues(name).Inc()
			fn(ctx)
		}
	}
}

// scanTriggers is one tick of the main reconciliation loop: snapshot the
// source book, mirror appeared orders, classify and act on disappeared
// ones.
func (s *Supervisor) scanTriggers(ctx context.Context) {
	if !s.cfg.Controller.Enabled() {
		return
	}

	current, err := s.cfg.Source.GetAllTriggerOrders(ctx, s.cfg.SourceContract)
	if err != nil {
		s.logger.Warn("trigger-scan-failed", zap.Error(err))
		return
	}
	diff := s.cfg.Snapshots.Observe(current)

	for _, order := range diff.Appeared {
		_, already := s.cfg.Records.BySource(order.OrderID)
		if err := s.cfg.Placer.Place(ctx, order); err != nil {
			s.logger.Warn("placement-error",
				zap.String("order_id", order.OrderID), zap.Error(err))
			continue
		}
		// Place reports nil for deliberate skips too; only a fresh record
		// means an order actually went out.
		if _, ok := s.cfg.Records.BySource(order.OrderID); ok && !already {
			s.recordEvent(ctx, storage.EventPlaced, order.OrderID)
		}
	}

	for _, order := range diff.Disappeared {
		s.handleDisappeared(ctx, order)
	}

	// Re-examine orders parked as uncertain with fresher prices.
	s.mu.Lock()
	parked := make([]*types.TriggerOrder, 0, len(s.uncertain))
	for _, order := range s.uncertain {
		parked = append(parked, order)
	}
	s.mu.Unlock()
	for _, order := range parked {
		s.handleDisappeared(ctx, order)
	}
}

func (s *Supervisor) handleDisappeared(ctx context.Context, order *types.TriggerOrder) {
	if s.cfg.Startup.IsStartupTrigger(order.OrderID) {
		return
	}

	res := s.cfg.Analyzer.Analyze(ctx, order)
	switch res.Decision {
	case analyzer.DecisionFilled:
		s.forget(order.OrderID)
		if res.Escalate {
			s.escalateFill(ctx, order)
		}
		if err := s.cfg.Filler.Execute(ctx, order.OrderID); err != nil {
			s.enqueueFill(order.OrderID)
		} else {
			s.recordEvent(ctx, storage.EventFilled, order.OrderID)
		}
	case analyzer.DecisionCanceled:
		s.forget(order.OrderID)
		if err := s.cfg.Syncer.Cancel(ctx, order.OrderID); err != nil {
			s.enqueueCancel(order.OrderID)
		} else {
			s.recordEvent(ctx, storage.EventCanceled, order.OrderID)
		}
	default:
		s.mu.Lock()
		s.uncertain[order.OrderID] = order
		s.mu.Unlock()
	}
}

// escalateFill flags a fill that executes under a dangerous cross-venue
// price gap: the mirror's market order will land far from the source's
// fill price, and the operator should see it immediately.
func (s *Supervisor) escalateFill(ctx context.Context, order *types.TriggerOrder) {
	prices := s.cfg.Prices.Prices()
	escalatedFillsTotal.Inc()
	s.logger.Warn("fill-escalated-on-divergence",
		zap.String("order_id", order.OrderID),
		zap.Float64("trigger", order.TriggerPrice),
		zap.Float64("price_diff", prices.DiffAbs))

	if s.cfg.Notifier != nil {
		text := fmt.Sprintf("mirror filling %s with venues %.0f USD apart",
			order.OrderID, prices.DiffAbs)
		if err := s.cfg.Notifier.Send(ctx, "price_divergence", text); err != nil {
			s.logger.Warn("divergence-notify-failed", zap.Error(err))
		}
	}
}

func (s *Supervisor) drainFillQueue(ctx context.Context) {
	for _, id := range s.snapshotSet(&s.pendingFills) {
		if _, live := s.cfg.Records.BySource(id); !live {
			s.dequeueFill(id)
			continue
		}
		if err := s.cfg.Filler.Execute(ctx, id); err == nil {
			s.dequeueFill(id)
			s.recordEvent(ctx, storage.EventFilled, id)
		}
	}
}

func (s *Supervisor) retryCancels(ctx context.Context) {
	for _, id := range s.snapshotSet(&s.pendingCancels) {
		if _, live := s.cfg.Records.BySource(id); !live {
			s.dequeueCancel(id)
			continue
		}
		if err := s.cfg.Syncer.Cancel(ctx, id); err == nil {
			s.dequeueCancel(id)
			s.recordEvent(ctx, storage.EventCanceled, id)
		}
	}
}

func (s *Supervisor) syncPositions(ctx context.Context) {
	if !s.cfg.Controller.Enabled() {
		return
	}
	if err := s.cfg.Reconciler.Sync(ctx); err != nil {
		s.logger.Warn("position-sync-failed", zap.Error(err))
	}
}

func (s *Supervisor) sweepCaches() {
	for _, sw := range s.cfg.Sweepers {
		sw.Sweep()
	}
}

func (s *Supervisor) enqueueFill(id string) {
	s.mu.Lock()
	s.pendingFills[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Supervisor) dequeueFill(id string) {
	s.mu.Lock()
	delete(s.pendingFills, id)
	s.mu.Unlock()
}

func (s *Supervisor) enqueueCancel(id string) {
	s.mu.Lock()
	s.pendingCancels[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Supervisor) dequeueCancel(id string) {
	s.mu.Lock()
	delete(s.pendingCancels, id)
	s.mu.Unlock()
}

// recordEvent writes one audit row. Persistence failures are logged and
// swallowed; the engine never blocks on the audit trail.
func (s *Supervisor) recordEvent(ctx context.Context, kind storage.EventKind, sourceOrderID string) {
	if s.cfg.Store == nil {
		return
	}
	ev := &storage.MirrorEvent{
		Kind:          kind,
		SourceOrderID: sourceOrderID,
		Contract:      s.cfg.MirrorContract,
		At:            s.cfg.Clock.Now(),
	}
	if rec, ok := s.cfg.Records.BySource(sourceOrderID); ok {
		ev.MirrorOrderID = rec.MirrorOrderID
		ev.Contracts = rec.Contracts
		ev.FinalRatio = rec.FinalMarginRatio
		ev.TriggerPrice = rec.AdjustedTriggerPrice
	}
	if err := s.cfg.Store.RecordEvent(ctx, ev); err != nil {
		s.logger.Warn("audit-store-failed",
			zap.String("kind", string(kind)), zap.Error(err))
	}
}

// forget drops an order from the uncertain parking lot once a decisive
// classification lands.
func (s *Supervisor) forget(id string) {
	s.mu.Lock()
	delete(s.uncertain, id)
	s.mu.Unlock()
}

func (s *Supervisor) snapshotSet(set *map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(*set))
	for id := range *set {
		out = append(out, id)
	}
	return out
}
