package cache

import (
	"strings"
	"time"
)

const DefaultTTL = 5 * time.Minute

// categoryTTL maps a fetch-identifier fragment to its time-to-live. Highly
// volatile aggregates get short TTLs; stable ones get long TTLs to bound
// database load.
type categoryTTL struct {
	match string
	ttl   time.Duration
}

// defaultCategories are checked in order; first substring match wins.
var defaultCategories = []categoryTTL{
	{match: "realtime", ttl: 30 * time.Second},
	{match: "alertas", ttl: time.Hour},
	{match: "alerts", ttl: time.Hour},
	{match: "stats_general", ttl: 2 * time.Minute},
}

// ttlFor selects the TTL for a normalized fetch identifier.
func (c *Cache) ttlFor(fetchID string) time.Duration {
	for _, cat := range c.categories {
		if strings.Contains(fetchID, cat.match) {
			return cat.ttl
		}
	}
	return c.defaultTTL
}
