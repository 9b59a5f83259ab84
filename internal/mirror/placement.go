package mirror

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/orderhash"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/cache"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	// maxFinalRatio caps the fraction of mirror equity committed to one
	// order.
	maxFinalRatio = 0.95

	// availableClampFraction bounds the computed margin by available
	// balance when equity-derived sizing exceeds it.
	availableClampFraction = 0.95

	// adjustDiffThreshold is the cross-venue price gap above which the
	// trigger price is shifted toward the mirror's market.
	adjustDiffThreshold = 50.0

	// adjustMaxFraction bounds the total shift to 5% of the trigger.
	adjustMaxFraction = 0.05
)

// PlacerConfig wires the placement pipeline.
type PlacerConfig struct {
	Source     venue.SourceClient
	Mirror     venue.MirrorClient
	Guard      *marginguard.Guard
	Controller *controller.Controller
	Prices     *pricetracker.Tracker
	Notifier   venue.Notifier

	Records *Records
	Locks   *KeyedLocks
	Startup *StartupSet
	Stats   *Stats

	Hashes            cache.TTLSet // canonical order hashes
	RecentlyProcessed cache.TTLSet

	Scheme *orderhash.Scheme

	MirrorContract   string
	ContractUnit     float64
	MinimumMarginUSD float64

	Logger *zap.Logger
}

// Placer mirrors newly appeared source trigger orders.
type Placer struct {
	source     venue.SourceClient
	mirror     venue.MirrorClient
	guard      *marginguard.Guard
	controller *controller.Controller
	prices     *pricetracker.Tracker
	notifier   venue.Notifier

	records *Records
	locks   *KeyedLocks
	startup *StartupSet
	stats   *Stats

	hashes            cache.TTLSet
	recentlyProcessed cache.TTLSet

	scheme *orderhash.Scheme

	mirrorContract string
	contractUnit   float64
	minMarginUSD   float64

	logger *zap.Logger
}

func NewPlacer(cfg *PlacerConfig) *Placer {
	return &Placer{
		source:            cfg.Source,
		mirror:            cfg.Mirror,
		guard:             cfg.Guard,
		controller:        cfg.Controller,
		prices:            cfg.Prices,
		notifier:          cfg.Notifier,
		records:           cfg.Records,
		locks:             cfg.Locks,
		startup:           cfg.Startup,
		stats:             cfg.Stats,
		hashes:            cfg.Hashes,
		recentlyProcessed: cfg.RecentlyProcessed,
		scheme:            cfg.Scheme,
		mirrorContract:    cfg.MirrorContract,
		contractUnit:      cfg.ContractUnit,
		minMarginUSD:      cfg.MinimumMarginUSD,
		logger:            cfg.Logger.Named("placer"),
	}
}

// Place mirrors one appeared source order. A nil error with no new record
// means the order was deliberately skipped (dedup, startup, disabled).
func (p *Placer) Place(ctx context.Context, order *types.TriggerOrder) error {
	if !p.controller.Enabled() {
		return nil
	}
	if err := order.Validate(); err != nil {
		p.logger.Warn("appeared-order-invalid",
			zap.String("order_id", order.OrderID), zap.Error(err))
		placementsTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	if p.startup.IsStartupTrigger(order.OrderID) {
		placementsTotal.WithLabelValues("startup_skip").Inc()
		return nil
	}
	if p.recentlyProcessed.Has(order.OrderID) {
		placementsTotal.WithLabelValues("dedup_recent").Inc()
		return nil
	}
	hashOrder := orderhash.Order{
		Contract:     order.Contract,
		TriggerPrice: order.TriggerPrice,
		Size:         order.Size,
		TPPrice:      order.TPPrice,
		SLPrice:      order.SLPrice,
	}
	variants := p.scheme.Variants(hashOrder)
	for _, v := range variants {
		if p.hashes.Has(v) || p.startup.HasHash(v) {
			placementsTotal.WithLabelValues("dedup_hash").Inc()
			return nil
		}
	}
	p.recentlyProcessed.Add(order.OrderID)

	release := p.locks.Acquire(order.OrderID)
	defer release()

	if _, ok := p.records.BySource(order.OrderID); ok {
		placementsTotal.WithLabelValues("already_mirrored").Inc()
		return nil
	}

	p.guard.Ensure(ctx)

	reduceOnly := order.Side.IsClose()
	if reduceOnly {
		p.checkPermissiveClose(ctx, order)
	}

	leverage := p.resolveLeverage(ctx, order)

	baseRatio, finalRatio, err := p.computeRatios(ctx, order, leverage)
	if err != nil {
		p.fail(ctx, order, err)
		return err
	}

	adjusted := p.adjustTrigger(order)

	contracts, err := p.sizeContracts(ctx, finalRatio, leverage, adjusted)
	if err != nil {
		p.fail(ctx, order, err)
		return err
	}

	// Leverage is applied best effort; the venue keeps the previous value
	// when the update fails and sizing still holds approximately.
	if err := p.mirror.SetLeverage(ctx, p.mirrorContract, leverage); err != nil {
		p.logger.Warn("mirror-set-leverage-failed",
			zap.Int("leverage", leverage), zap.Error(err))
	}

	req := &venue.TriggerRequest{
		Contract:     p.mirrorContract,
		Side:         order.Side,
		TriggerPrice: adjusted,
		Size:         float64(contracts),
		ReduceOnly:   reduceOnly,
		TPPrice:      order.TPPrice,
		SLPrice:      order.SLPrice,
	}
	result, err := p.mirror.PlaceTrigger(ctx, req)
	if err != nil {
		p.fail(ctx, order, fmt.Errorf("place trigger: %w", err))
		return err
	}

	rec := &Record{
		SourceOrderID:          order.OrderID,
		MirrorOrderID:          result.OrderID,
		Source:                 order,
		BaseMarginRatio:        baseRatio,
		AppliedRatioMultiplier: p.controller.Ratio(),
		FinalMarginRatio:       finalRatio,
		RequestedTriggerPrice:  order.TriggerPrice,
		AdjustedTriggerPrice:   adjusted,
		HasTPSL:                order.HasTPSL(),
		TPSLApplied:            result.TPSLApplied,
		TPPrice:                order.TPPrice,
		SLPrice:                order.SLPrice,
		Contracts:              contracts,
		CreatedAt:              time.Now(),
	}
	if err := p.records.Insert(rec); err != nil {
		// The mirror order exists but cannot be tracked; cancel it rather
		// than leave an unmapped live trigger.
		p.logger.Error("mirror-record-insert-failed",
			zap.String("source_order_id", order.OrderID),
			zap.String("mirror_order_id", result.OrderID),
			zap.Error(err))
		if cerr := p.mirror.CancelTrigger(ctx, result.OrderID); cerr != nil && !types.IsIdempotentVenueError(cerr) {
			p.logger.Error("mirror-orphan-cancel-failed",
				zap.String("mirror_order_id", result.OrderID), zap.Error(cerr))
		}
		text := fmt.Sprintf("mirror order %s (source %s) could not be recorded and was canceled; check %s for a stray trigger",
			result.OrderID, order.OrderID, p.mirrorContract)
		if nerr := venue.NotifyCritical(ctx, p.notifier, "invariant", text); nerr != nil {
			p.logger.Warn("invariant-notify-failed", zap.Error(nerr))
		}
		p.fail(ctx, order, err)
		return err
	}

	for _, v := range variants {
		p.hashes.Add(v)
	}

	placementsTotal.WithLabelValues("placed").Inc()
	p.stats.MirrorPlaced()
	p.logger.Info("mirror-order-placed",
		zap.String("source_order_id", order.OrderID),
		zap.String("mirror_order_id", result.OrderID),
		zap.String("side", string(order.Side)),
		zap.Float64("trigger", order.TriggerPrice),
		zap.Float64("adjusted_trigger", adjusted),
		zap.Float64("final_ratio", finalRatio),
		zap.Int64("contracts", contracts),
		zap.Bool("tpsl_applied", result.TPSLApplied))

	if p.notifier != nil {
		text := fmt.Sprintf("mirrored %s %s trigger %.2f as %d contracts at %.2f (ratio %.4f)",
			order.Contract, order.Side, order.TriggerPrice, contracts, adjusted, finalRatio)
		if err := p.notifier.Send(ctx, "mirror_success", text); err != nil {
			p.logger.Warn("mirror-notify-failed", zap.Error(err))
		}
	}
	return nil
}

// checkPermissiveClose counts closes mirrored without a matching mirror
// position. The close is still mirrored: a concurrent open may be in
// flight, and the transient reduce-only order resolves itself either way.
func (p *Placer) checkPermissiveClose(ctx context.Context, order *types.TriggerOrder) {
	positions, err := p.mirror.GetPositions(ctx, p.mirrorContract)
	if err != nil {
		return
	}
	want := types.DirectionLong
	if order.Side == types.SideCloseShort {
		want = types.DirectionShort
	}
	for _, pos := range positions {
		if pos != nil && !pos.Flat() && pos.Direction == want {
			return
		}
	}
	permissiveClosesTotal.Inc()
	p.stats.PermissiveClose()
	p.logger.Warn("permissive-close-mirrored",
		zap.String("source_order_id", order.OrderID),
		zap.String("side", string(order.Side)))
}

// resolveLeverage walks order payload, source position, then account
// default, clamping the result.
func (p *Placer) resolveLeverage(ctx context.Context, order *types.TriggerOrder) int {
	if order.Leverage > 0 {
		return types.ClampLeverage(order.Leverage)
	}
	if positions, err := p.source.GetPositions(ctx, order.Contract); err == nil {
		for _, pos := range positions {
			if pos != nil && pos.Leverage > 0 {
				return types.ClampLeverage(pos.Leverage)
			}
		}
	}
	if acct, err := p.source.GetAccount(ctx); err == nil && acct.LeverageDefault > 0 {
		return types.ClampLeverage(acct.LeverageDefault)
	}
	return types.DefaultLeverage
}

func (p *Placer) computeRatios(ctx context.Context, order *types.TriggerOrder, leverage int) (base, final float64, err error) {
	acct, err := p.source.GetAccount(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("source account: %w", err)
	}
	if acct.TotalEquity <= 0 {
		return 0, 0, fmt.Errorf("source equity %.2f not positive", acct.TotalEquity)
	}

	base = (order.Size * order.TriggerPrice) / (float64(leverage) * acct.TotalEquity)
	final = base * p.controller.Ratio()
	if final > maxFinalRatio {
		final = maxFinalRatio
	}
	if final <= 0 {
		return 0, 0, fmt.Errorf("final ratio %.6f not positive", final)
	}
	return base, final, nil
}

// adjustTrigger shifts the trigger toward the mirror's market when the
// venues diverge, so the mirror fires at an economically equivalent
// point. Buy-side intent shifts down, sell-side up; the total shift is
// bounded.
func (p *Placer) adjustTrigger(order *types.TriggerOrder) float64 {
	prices := p.prices.Prices()
	if !prices.Valid || prices.DiffAbs <= adjustDiffThreshold {
		return order.TriggerPrice
	}

	shift := prices.DiffAbs * 0.5
	if bound := order.TriggerPrice * adjustMaxFraction; shift > bound {
		shift = bound
	}
	switch order.Side {
	case types.SideOpenLong, types.SideCloseShort:
		return order.TriggerPrice - shift
	default:
		return order.TriggerPrice + shift
	}
}

func (p *Placer) sizeContracts(ctx context.Context, finalRatio float64, leverage int, adjustedTrigger float64) (int64, error) {
	acct, err := p.mirror.GetAccount(ctx)
	if err != nil {
		return 0, fmt.Errorf("mirror account: %w", err)
	}
	if acct.TotalEquity <= 0 {
		return 0, fmt.Errorf("mirror equity %.2f not positive", acct.TotalEquity)
	}

	margin := finalRatio * acct.TotalEquity
	if limit := acct.Available * availableClampFraction; margin > limit {
		margin = limit
	}
	if margin < p.minMarginUSD {
		return 0, fmt.Errorf("margin %.2f below minimum %.2f", margin, p.minMarginUSD)
	}

	notional := margin * float64(leverage)
	contracts := int64(math.Floor(notional / (adjustedTrigger * p.contractUnit)))
	if contracts < 1 {
		contracts = 1
	}
	return contracts, nil
}

func (p *Placer) fail(ctx context.Context, order *types.TriggerOrder, err error) {
	placementsTotal.WithLabelValues("failed").Inc()
	p.stats.MirrorFailed(err)
	p.logger.Warn("mirror-placement-failed",
		zap.String("source_order_id", order.OrderID),
		zap.Error(err))
}
