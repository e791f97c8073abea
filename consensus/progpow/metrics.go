package progpow

import "github.com/dominant-strategies/go-progpow/metrics_config"

var (
	hashCounter            = metrics_config.NewCounterVec("progpow_hashes_total", "Number of progpow evaluations by path", "path")
	cacheGenerationTimer   = metrics_config.NewTimer("progpow_cache_generation_seconds", "Time spent generating verification caches")
	datasetGenerationTimer = metrics_config.NewTimer("progpow_dataset_generation_seconds", "Time spent generating full datasets")
	hashCacheCounter       = metrics_config.NewCounterVec("progpow_result_cache_total", "Engine result cache lookups", "outcome")
)
