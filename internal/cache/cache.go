// Package cache implements the bounded in-process caches that sit in front of
// the geodata providers, plus the scored-row store used to re-explain
// previously scored points.
//
// Eviction is insertion-order FIFO, not LRU: once a store exceeds its bound,
// the oldest-inserted entries are dropped until the bound is met again.
// Entries have no TTL; staleness is accepted as a space/freshness trade-off.
//
// The caches are an explicit service object constructed once at process start
// and injected into providers and orchestrators. They are never package
// globals, which keeps them independently testable and resettable.
package cache

import (
	"sync"
	"time"

	"roadrisk/internal/geo"
	"roadrisk/internal/types"
)

// FIFO is a mutex-guarded key→value store bounded by a maximum entry count.
// On Set, when the size exceeds the bound, the oldest-inserted entries are
// evicted until size equals the bound.
type FIFO[V any] struct {
	mu      sync.Mutex
	max     int
	entries map[string]V
	order   []string
}

// NewFIFO creates a bounded FIFO store. A non-positive max disables the
// bound (the store grows without eviction).
func NewFIFO[V any](max int) *FIFO[V] {
	return &FIFO[V]{
		max:     max,
		entries: make(map[string]V),
	}
}

// Get returns the cached value for key, if present.
func (c *FIFO[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores value under key, evicting the oldest-inserted entries if the
// bound is exceeded. Overwriting an existing key does not refresh its
// insertion position.
func (c *FIFO[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = value

	if c.max <= 0 {
		return
	}
	for len(c.entries) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the current number of entries.
func (c *FIFO[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Limits configures the bound of each cache. Zero values fall back to the
// defaults used in production.
type Limits struct {
	Weather       int
	Twilight      int
	RoadFlags     int
	Rows          int
	FlagPrecision int // decimal degrees for road-flag keys
}

// DefaultLimits returns the production cache bounds.
func DefaultLimits() Limits {
	return Limits{
		Weather:       2000,
		Twilight:      2000,
		RoadFlags:     4000,
		Rows:          2000,
		FlagPrecision: 3,
	}
}

// Service bundles the four independent caches. The stores never share keys
// or eviction state; each is guarded by its own mutex.
type Service struct {
	Weather   *FIFO[types.WeatherFeatures]
	Twilight  *FIFO[types.TwilightFields]
	RoadFlags *FIFO[types.RoadFlags]
	Rows      RowStore

	flagPrecision int
}

// NewService constructs the cache service with in-memory stores. Pass a
// non-nil rows store (e.g. the Redis-backed one) to override the default
// in-memory scored-row cache.
func NewService(limits Limits, rows RowStore) *Service {
	def := DefaultLimits()
	if limits.Weather <= 0 {
		limits.Weather = def.Weather
	}
	if limits.Twilight <= 0 {
		limits.Twilight = def.Twilight
	}
	if limits.RoadFlags <= 0 {
		limits.RoadFlags = def.RoadFlags
	}
	if limits.Rows <= 0 {
		limits.Rows = def.Rows
	}
	if limits.FlagPrecision <= 0 {
		limits.FlagPrecision = def.FlagPrecision
	}
	if rows == nil {
		rows = NewMemoryRowStore(limits.Rows)
	}
	return &Service{
		Weather:       NewFIFO[types.WeatherFeatures](limits.Weather),
		Twilight:      NewFIFO[types.TwilightFields](limits.Twilight),
		RoadFlags:     NewFIFO[types.RoadFlags](limits.RoadFlags),
		Rows:          rows,
		flagPrecision: limits.FlagPrecision,
	}
}

// WeatherKey builds the weather cache key: the point rounded to a 3-decimal
// cell plus the timestamp truncated to the hour. Two lookups in the same
// cell and calendar hour share an entry.
func WeatherKey(p types.Point, t time.Time) string {
	return geo.CellKey(p, 3) + ":" + t.Format("2006-01-02T15")
}

// TwilightKey builds the twilight cache key: 3-decimal cell plus calendar
// date.
func TwilightKey(p types.Point, t time.Time) string {
	return geo.CellKey(p, 3) + ":" + t.Format("2006-01-02")
}

// FlagKey builds the road-flag cache key at the configured cell precision.
func (s *Service) FlagKey(p types.Point) string {
	return geo.CellKey(p, s.flagPrecision)
}
