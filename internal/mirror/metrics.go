package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirror_live_records",
		Help: "Currently live mirrored orders",
	})

	placementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_placements_total",
		Help: "Placement pipeline outcomes",
	}, []string{"outcome"})

	permissiveClosesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_permissive_close_total",
		Help: "Close orders mirrored while the mirror position was absent",
	})

	immediateFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_immediate_fills_total",
		Help: "Immediate-fill executor outcomes",
	}, []string{"outcome"})

	backupFillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_backup_fills_total",
		Help: "Backup fill attempts by stage",
	}, []string{"stage"})

	cancelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_cancels_total",
		Help: "Cancel synchronizer outcomes",
	}, []string{"outcome"})

	forcedCancelCleanupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_forced_cancel_cleanups_total",
		Help: "Records force-removed after exhausting cancel retries",
	})

	reconcilerClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_reconciler_closes_total",
		Help: "Positions closed by the reconciler, by reason",
	}, []string{"reason"})
)
