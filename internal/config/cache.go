package config

import (
	"strings"
	"time"
)

var cacheKeyStrategies = map[string]bool{
	"route":              true,
	"route_query":        true,
	"method_route":       true,
	"method_route_query": true,
}

// CacheConfig configures the Redis response cache in front of the public
// slot reads.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

// LoadCacheConfig reads CACHE_*. The TTL defaults to a few seconds because
// availability flips whenever a cart changes.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      map[string]bool{},
		TTL:          envDur("CACHE_TTL", 5*time.Second),
		KeyStrategy:  strings.ToLower(envStr("CACHE_KEY_STRATEGY", "route_query")),
		Prefix:       envStr("CACHE_PREFIX", "cache:slots"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	for _, m := range strings.Split(envStr("CACHE_METHODS", "GET"), ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m == "GET" || m == "HEAD" {
			c.Methods[m] = true
		}
	}
	if !cacheKeyStrategies[c.KeyStrategy] {
		c.KeyStrategy = "route_query"
	}
	return c
}

// Cacheable reports whether responses to method may be stored. Only safe
// methods are ever accepted.
func (c CacheConfig) Cacheable(method string) bool {
	return c.Methods[strings.ToUpper(method)]
}
