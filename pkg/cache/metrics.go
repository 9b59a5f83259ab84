package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHitsTotal tracks TTL-set membership hits.
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_cache_hits_total",
			Help: "Total number of TTL set hits",
		},
		[]string{"set"},
	)

	// CacheMissesTotal tracks TTL-set membership misses.
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_cache_misses_total",
			Help: "Total number of TTL set misses",
		},
		[]string{"set"},
	)

	// CacheSetsTotal tracks TTL-set insertions.
	CacheSetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_cache_sets_total",
			Help: "Total number of TTL set insertions",
		},
		[]string{"set"},
	)
)
