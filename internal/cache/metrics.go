package cache

import "github.com/sbahar619/namespace-label-spreader/internal/metrics"

const subsystem = "namespace_cache"

var (
	// cacheHitsTotal counts lookups served from the snapshot.
	cacheHitsTotal = metrics.MustRegisterCounter(subsystem, "hits_total",
		"Number of namespace lookups served from the cache.")
	// cacheMissesTotal counts lookups that had to read the namespace from the API server.
	cacheMissesTotal = metrics.MustRegisterCounter(subsystem, "misses_total",
		"Number of namespace lookups that fetched the namespace from the API server.")
	refreshErrorsTotal = metrics.MustRegisterCounter(subsystem, "refresh_errors_total",
		"Number of failed full namespace cache refreshes.")
	cacheSize = metrics.MustRegisterGauge(subsystem, "size",
		"Number of namespaces currently held in the cache.")
)
