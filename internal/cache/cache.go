// Package cache provides the frontend's bounded LRU cache of stock lookups.
//
// The cache sits between the HTTP gateway and the catalog service: lookups are
// served from the cache when possible, inserted on miss, and removed whenever
// an order mutates the underlying stock. Capacity is fixed at construction;
// inserting into a full cache evicts the least recently used entry.
package cache

import (
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of stocks cached when no capacity is configured.
const DefaultCapacity = 10

// ErrInvalidCapacity is returned when the configured capacity is not positive.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Stock is the cached view of a catalog lookup.
type Stock struct {
	Name     string
	Price    float64
	Quantity int64
}

// StockCache is a thread-safe LRU cache of stock lookups keyed by stock name.
//
// Every operation, including Get, runs under the underlying cache's exclusive
// lock: a hit atomically promotes the entry to most recently used, so recency
// bookkeeping never races with concurrent lookups.
type StockCache struct {
	entries *lru.Cache[string, Stock]
	logger  *slog.Logger
}

// New creates a StockCache holding at most capacity entries.
func New(capacity int, logger *slog.Logger) (*StockCache, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	c := &StockCache{logger: logger}

	entries, err := lru.NewWithEvict(capacity, func(name string, _ Stock) {
		if c.logger != nil {
			c.logger.Debug("Evicted least recently used stock from cache",
				slog.String("stock", name),
			)
		}
	})
	if err != nil {
		return nil, err
	}

	c.entries = entries

	return c, nil
}

// Get returns the cached stock for name, promoting it to most recently used.
// The second return value reports whether the name was resident.
func (c *StockCache) Get(name string) (Stock, bool) {
	return c.entries.Get(name)
}

// Put inserts or overwrites the cached stock for stock.Name, promoting it to
// most recently used. Inserting into a full cache evicts the least recently
// used entry.
func (c *StockCache) Put(stock Stock) {
	c.entries.Add(stock.Name, stock)
}

// Invalidate removes name from the cache. It reports whether an entry was
// removed. Once Invalidate returns, a Get for the same name misses until a
// later Put re-inserts it.
func (c *StockCache) Invalidate(name string) bool {
	return c.entries.Remove(name)
}

// Len returns the number of resident entries.
func (c *StockCache) Len() int {
	return c.entries.Len()
}

// Keys returns the resident stock names ordered from least to most recently used.
func (c *StockCache) Keys() []string {
	return c.entries.Keys()
}
