package pricetracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	priceGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mirror_last_price",
		Help: "Last valid price per venue",
	}, []string{"venue"})

	priceDiffGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mirror_price_diff_abs",
		Help: "Absolute difference between source and mirror prices",
	})

	pollFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_price_poll_failures_total",
		Help: "Ticker poll failures per venue",
	}, []string{"venue"})

	rejectedSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_price_rejected_samples_total",
		Help: "Ticker samples rejected as abnormal",
	}, []string{"venue"})
)
