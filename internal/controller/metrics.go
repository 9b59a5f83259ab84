package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enabledGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirror_enabled",
		Help: "Whether mirroring is currently enabled (1) or disabled (0)",
	})

	ratioGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirror_ratio_multiplier",
		Help: "Current operator-set margin-ratio multiplier",
	})

	ratioChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_ratio_changes_total",
		Help: "Number of accepted ratio updates",
	})
)
