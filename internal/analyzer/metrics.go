package analyzer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_analyzer_decisions_total",
		Help: "Disappeared-order classifications by outcome",
	}, []string{"decision"})

	recentFillLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirror_analyzer_recent_fill_lookup_failures_total",
		Help: "Failed recent-fills queries against the source venue",
	})
)
