package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sightline/sightline/internal/build"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "engine_searches_total",
		Help:      "The total number of search queries issued to the backing engine.",
	}, []string{"operation"})

	bulkOpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "engine_bulk_operations_total",
		Help:      "The total number of documents written through bulk calls.",
	})

	cascadeDeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "cascade_deletes_total",
		Help:      "The total number of elements removed by cascading deletion.",
	})

	cacheHitCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "element_cache_hit_count",
		Help:      "The total number of element lookups served from the cache.",
	})

	cacheMissCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "element_cache_miss_count",
		Help:      "The total number of element lookups that fell back to the engine.",
	})
)
