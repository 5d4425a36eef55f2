package terminology

import (
	"github.com/gofhir/hl7v2/cache"
	"github.com/gofhir/hl7v2/pkg/logger"
)

// DefaultCacheSize is the number of answers a Cached lookup keeps per query kind.
const DefaultCacheSize = 1024

// Cached wraps a Lookup with LRU caches. Failed lookups are not cached, so a
// table that becomes available later is picked up.
type Cached struct {
	inner        Lookup
	values       *cache.Cache[string, []string]
	descriptions *cache.Cache[string, string]
	contains     *cache.Cache[string, bool]
}

// NewCached creates a cached lookup. A size below 1 uses DefaultCacheSize.
func NewCached(inner Lookup, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cached{
		inner:        inner,
		values:       cache.New[string, []string](size),
		descriptions: cache.New[string, string](size),
		contains:     cache.New[string, bool](size),
	}
}

// Inner returns the wrapped lookup.
func (c *Cached) Inner() Lookup {
	return c.inner
}

func key(tableID, value string) string {
	return tableID + "|" + value
}

// Values implements Lookup.
func (c *Cached) Values(tableID string) ([]string, error) {
	v, err := c.values.GetOrLoad(tableID, func() ([]string, error) {
		return c.inner.Values(tableID)
	})
	if err != nil {
		logger.Warn("code table lookup failed: %v", err)
		return nil, err
	}
	return append([]string(nil), v...), nil
}

// Description implements Lookup.
func (c *Cached) Description(tableID, value string) (string, error) {
	return c.descriptions.GetOrLoad(key(tableID, value), func() (string, error) {
		return c.inner.Description(tableID, value)
	})
}

// Contains implements Lookup.
func (c *Cached) Contains(tableID, value string) (bool, error) {
	ok, err := c.contains.GetOrLoad(key(tableID, value), func() (bool, error) {
		return c.inner.Contains(tableID, value)
	})
	if err != nil {
		logger.Warn("code table lookup failed: %v", err)
	}
	return ok, err
}

// Clear drops every cached answer.
func (c *Cached) Clear() {
	c.values.Clear()
	c.descriptions.Clear()
	c.contains.Clear()
}

// Stats returns the statistics of the Contains cache, the one validation uses.
func (c *Cached) Stats() cache.Stats {
	return c.contains.Stats()
}

var _ Lookup = (*Cached)(nil)
