package adapter

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/c360studio/artificer/query"
)

// DefaultCacheSize is used when NewCache is given a non-positive size.
const DefaultCacheSize = 256

// Cache holds parsed queries keyed by the parser's bindings and the final
// query text. It is safe
// for concurrent use. Cached trees are shared, so executors must treat them
// as read-only.
type Cache struct {
	entries *lru.Cache[string, *query.Query]
}

// NewCache creates a cache holding at most size parsed queries.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *query.Query](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Get returns the query parsed from text under bindings, if cached.
func (c *Cache) Get(bindings, text string) (*query.Query, bool) {
	return c.entries.Get(cacheKey(bindings, text))
}

// Add stores a query parsed from text under bindings.
func (c *Cache) Add(bindings, text string, q *query.Query) {
	c.entries.Add(cacheKey(bindings, text), q)
}

func cacheKey(bindings, text string) string {
	return bindings + "\x00" + text
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
