package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fiberTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_fiber_ticks_total",
		Help: "Ticks executed per fiber",
	}, []string{"fiber"})

	fiberPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_fiber_panics_total",
		Help: "Panics recovered per fiber",
	}, []string{"fiber"})

	escalatedFillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_escalated_fills_total",
		Help: "Immediate fills executed under a cross-venue price divergence above twice the close threshold",
	})
)
