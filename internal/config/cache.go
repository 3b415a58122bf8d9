package config

import (
	"net/http"
	"strings"
	"time"
)

// CacheConfig controls the Redis response cache in front of the public plan
// catalog.  Only tenant-independent routes sit behind it, so cache keys
// never carry a user or tenant component.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string // route | route_query | method_route | method_route_query
	Prefix       string
	MaxBodyBytes int // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      methodSet(getenv("CACHE_METHODS", http.MethodGet)),
		TTL:          envDur("CACHE_TTL", 5*time.Minute),
		KeyStrategy:  strings.ToLower(getenv("CACHE_KEY_STRATEGY", "route_query")),
		Prefix:       getenv("CACHE_PREFIX", "dispatch:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 256<<10),
	}
	return c.normalize()
}

func (c CacheConfig) normalize() CacheConfig {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 256 << 10
	}
	if len(c.Methods) == 0 {
		c.Methods = map[string]bool{http.MethodGet: true}
	}
	// caching a mutation would replay it without running the handler
	for m := range c.Methods {
		if m != http.MethodGet && m != http.MethodHead {
			delete(c.Methods, m)
		}
	}
	return c
}

func methodSet(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
