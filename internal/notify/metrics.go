package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mirror_notifications_suppressed_total",
	Help: "Notifications dropped by the per-category rate limit",
}, []string{"category"})
