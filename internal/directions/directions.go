package directions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/tripmatch/internal/geo"
	"github.com/example/tripmatch/internal/models"
)

// Route is a routed path between two coordinates.
type Route struct {
	Path            []models.Coord
	DistanceMeters  float64
	DurationSeconds float64
}

// Provider is the directions collaborator used by the scorer.
type Provider interface {
	Route(ctx context.Context, from, to models.Coord) (Route, error)
}

// DefaultSpeedMps is ~28.8 km/h, a typical city speed.
const DefaultSpeedMps = 8.0

// StraightLine is the fallback provider: a single segment, haversine
// distance and a constant speed.
type StraightLine struct {
	SpeedMps float64
}

func (s StraightLine) Route(_ context.Context, from, to models.Coord) (Route, error) {
	speed := s.SpeedMps
	if speed <= 0 {
		speed = DefaultSpeedMps
	}
	d := geo.Distance(from, to)
	return Route{Path: []models.Coord{from, to}, DistanceMeters: d, DurationSeconds: d / speed}, nil
}

// Cache is a tiny in-memory cache for route lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	r  Route
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// Get returns cached value and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (Route, bool) {
	k := keyFor(a, b)
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
	return e.r, true
}

// Set stores a value in the cache.
func (c *Cache) Set(a, b models.Coord, r Route) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{r: r, ts: time.Now()}
	c.mu.Unlock()
}

// Cached wraps a provider with a Cache. Failed lookups are not cached.
type Cached struct {
	Provider Provider
	Cache    *Cache
}

func (c *Cached) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	if r, ok := c.Cache.Get(from, to); ok {
		return r, nil
	}
	r, err := c.Provider.Route(ctx, from, to)
	if err != nil {
		return Route{}, err
	}
	c.Cache.Set(from, to, r)
	return r, nil
}
