package marginguard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_margin_mode_violations_total",
		Help: "Times the mirror account was found outside cross-margin",
	})

	coercionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_margin_coercions_total",
		Help: "Coercion stage attempts",
	}, []string{"stage"})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_margin_mode_failures_total",
		Help: "Guard rounds that ended without reaching cross-margin",
	})
)
