// Package analyzer decides why a source trigger order vanished from the
// listing: because it filled, or because it was canceled. The decision
// drives opposite mirror actions, so the analyzer prefers waiting over
// guessing when the two venues' prices disagree.
package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/cache"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// Decision classifies a disappeared source order.
type Decision string

const (
	// DecisionFilled means the order executed; the mirror must fill at
	// market immediately.
	DecisionFilled Decision = "filled"

	// DecisionCanceled means the order was withdrawn; the mirror
	// counterpart must be canceled.
	DecisionCanceled Decision = "canceled"

	// DecisionUncertain means the venues disagree; do nothing and let the
	// next tick retry with fresher prices.
	DecisionUncertain Decision = "uncertain"
)

// recentFillWindowMinutes bounds the recent-fills lookup on the source.
const recentFillWindowMinutes = 10

// Result carries the decision plus the evidence that produced it.
type Result struct {
	Decision      Decision
	SourceReached bool
	MirrorReached bool
	FromRecent    bool // order ID found in the source's recent fills
	Escalate      bool // price divergence demands an immediate market fill
}

type Config struct {
	Source         venue.SourceClient
	Prices         *pricetracker.Tracker
	RecentlyFilled cache.TTLSet
	Contract       string

	// CloseThreshold is the band around a close order's trigger within
	// which it counts as reached. Closes behave like stops; an exact
	// directional test would misread most of them.
	CloseThreshold float64

	Logger *zap.Logger
}

type Analyzer struct {
	source         venue.SourceClient
	prices         *pricetracker.Tracker
	recentlyFilled cache.TTLSet
	contract       string
	closeThreshold float64
	logger         *zap.Logger
}

func New(cfg *Config) *Analyzer {
	return &Analyzer{
		source:         cfg.Source,
		prices:         cfg.Prices,
		recentlyFilled: cfg.RecentlyFilled,
		contract:       cfg.Contract,
		closeThreshold: cfg.CloseThreshold,
		logger:         cfg.Logger.Named("analyzer"),
	}
}

// Analyze classifies one disappeared source order.
func (a *Analyzer) Analyze(ctx context.Context, order *types.TriggerOrder) Result {
	prices := a.prices.Prices()
	if !prices.Valid {
		// Without a valid price pair nothing can be inferred.
		decisionsTotal.WithLabelValues(string(DecisionUncertain)).Inc()
		return Result{Decision: DecisionUncertain}
	}

	res := Result{
		SourceReached: a.reached(order, prices.Source),
		MirrorReached: a.reached(order, prices.Mirror),
	}

	// Authoritative evidence beats price inference.
	if a.recentlyFilled != nil && a.recentlyFilled.Has(order.OrderID) {
		res.Decision = DecisionFilled
		res.FromRecent = true
	} else {
		switch {
		case res.SourceReached && !res.MirrorReached:
			res.Decision = DecisionFilled
		case res.SourceReached && res.MirrorReached:
			res.Decision = a.consultRecentFills(ctx, order)
			res.FromRecent = res.Decision == DecisionFilled
		case !res.SourceReached && !res.MirrorReached:
			res.Decision = DecisionCanceled
		default:
			// Mirror reached but source did not: prices disagree about
			// whether the trigger ever fired. Canceling here could strand
			// a real fill, so wait.
			res.Decision = DecisionUncertain
		}
	}

	if res.Decision == DecisionFilled && prices.DiffAbs > 2*a.closeThreshold {
		res.Escalate = true
	}

	decisionsTotal.WithLabelValues(string(res.Decision)).Inc()
	a.logger.Debug("disappeared-order-classified",
		zap.String("order_id", order.OrderID),
		zap.String("side", string(order.Side)),
		zap.Float64("trigger", order.TriggerPrice),
		zap.String("decision", string(res.Decision)),
		zap.Bool("src_reached", res.SourceReached),
		zap.Bool("mir_reached", res.MirrorReached))
	return res
}

// reached reports whether the trigger would have fired at the given
// price. Long opens buy the dip, so reached means price at or below the
// trigger; short opens are symmetric. Closes count as reached anywhere
// inside the threshold band.
func (a *Analyzer) reached(order *types.TriggerOrder, price float64) bool {
	if order.Side.IsClose() {
		return abs(price-order.TriggerPrice) <= a.closeThreshold
	}
	if order.Side == types.SideOpenLong {
		return price <= order.TriggerPrice
	}
	return price >= order.TriggerPrice
}

// consultRecentFills resolves the both-reached case: when either venue's
// price could have fired the trigger, only the source's fill history says
// whether it actually did.
func (a *Analyzer) consultRecentFills(ctx context.Context, order *types.TriggerOrder) Decision {
	fills, err := a.source.GetRecentFilledOrders(ctx, a.contract, recentFillWindowMinutes)
	if err != nil {
		a.logger.Warn("recent-fills-lookup-failed",
			zap.String("order_id", order.OrderID), zap.Error(err))
		recentFillLookupFailures.Inc()
		// Evidence is unavailable, not negative. Canceling here could
		// strand a real fill, so wait for the next tick.
		return DecisionUncertain
	}
	for _, fill := range fills {
		if fill.OrderID == order.OrderID {
			if a.recentlyFilled != nil {
				a.recentlyFilled.Add(order.OrderID)
			}
			return DecisionFilled
		}
	}
	return DecisionCanceled
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
