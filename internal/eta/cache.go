package eta

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

// Cache is a small in-memory TTL cache for planner results, keyed by the
// full point sequence. Drivers report every few seconds from nearly the same
// position, so short TTLs already absorb most planner traffic.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	route Route
	ts    time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(points []models.Coord) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		// 4 decimals ≈ 11 m grid, enough to coalesce consecutive reports.
		fmt.Fprintf(&b, "%.4f,%.4f", p.Lat, p.Lon)
	}
	return b.String()
}

func (c *Cache) Get(points []models.Coord) (Route, bool) {
	k := keyFor(points)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Route{}, false
	}
	return e.route, true
}

func (c *Cache) Set(points []models.Coord, route Route) {
	k := keyFor(points)
	c.mu.Lock()
	c.store[k] = cacheEntry{route: route, ts: time.Now()}
	c.mu.Unlock()
}
