package config

import "time"

// CacheConfig controls the Redis read cache for ticket availability. Keys
// are invalidated by domain events, so TTL only bounds staleness when an
// invalidation is lost.
type CacheConfig struct {
	Enabled         bool
	AvailabilityTTL time.Duration
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:         envBool("CACHE_ENABLED", true),
		AvailabilityTTL: envDur("CACHE_AVAILABILITY_TTL", 30*time.Second),
	}
}
