package cache

import (
	"context"
	"sync"
	"time"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// DefaultTTL bounds how long a city listing is served before it is reloaded.
const DefaultTTL = 10 * time.Minute

// CityLoader lists the landmarks of a city.
type CityLoader interface {
	ListByCity(ctx context.Context, city string) ([]core.Landmark, error)
}

type cityEntry struct {
	landmarks []core.Landmark
	loadedAt  time.Time
}

// CityCache keeps landmark reference data per city for init-game requests.
// Returned slices are shared and must not be modified.
type CityCache struct {
	mu     sync.RWMutex
	cities map[string]cityEntry
	loader CityLoader
	ttl    time.Duration
	now    func() time.Time

	Hits   SafeCounter
	Misses SafeCounter
}

// NewCityCache creates a CityCache. A non-positive ttl uses DefaultTTL.
func NewCityCache(loader CityLoader, ttl time.Duration) *CityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CityCache{
		cities: make(map[string]cityEntry),
		loader: loader,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Get returns the landmarks of city, loading them on a miss or after expiry.
func (c *CityCache) Get(ctx context.Context, city string) ([]core.Landmark, error) {
	c.mu.RLock()
	e, ok := c.cities[city]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		c.Hits.Inc()
		return e.landmarks, nil
	}

	c.Misses.Inc()
	ls, err := c.loader.ListByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []core.Landmark{}
	}

	c.mu.Lock()
	c.cities[city] = cityEntry{landmarks: ls, loadedAt: c.now()}
	c.mu.Unlock()
	return ls, nil
}

// Invalidate drops one city
func (c *CityCache) Invalidate(city string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cities, city)
}

// Reset clears all cities from the cache
func (c *CityCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cities = make(map[string]cityEntry)
}

// Len returns the number of cached cities.
func (c *CityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cities)
}
