// Package geo resolves free-text locations to coordinates.
package geo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"geochat/models"
)

// ErrNoMatch is returned when a location has no coordinates.
var ErrNoMatch = errors.New("location not found")

type Resolver interface {
	Resolve(ctx context.Context, location string) (models.Coordinates, error)
}

// Suggester offers up to limit place names for a partially typed location.
type Suggester interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// Static resolves from a fixed table. Lookups are case-insensitive.
type Static map[string]models.Coordinates

func (s Static) Resolve(_ context.Context, location string) (models.Coordinates, error) {
	if c, ok := s[normalize(location)]; ok {
		return c, nil
	}
	for k, c := range s {
		if normalize(k) == normalize(location) {
			return c, nil
		}
	}
	return models.Coordinates{}, ErrNoMatch
}

// Suggest returns the table's names that start with prefix, in alphabetical order.
func (s Static) Suggest(_ context.Context, prefix string, limit int) ([]string, error) {
	p := normalize(prefix)
	names := make([]string, 0)
	for k := range s {
		if strings.HasPrefix(normalize(k), p) {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// Cache memoizes successful resolutions of another Resolver. Misses and
// errors are not cached so a transient failure is retried next time.
type Cache struct {
	next Resolver
	mu   sync.RWMutex
	hits map[string]models.Coordinates
}

func NewCache(next Resolver) *Cache {
	return &Cache{next: next, hits: make(map[string]models.Coordinates)}
}

func (c *Cache) Resolve(ctx context.Context, location string) (models.Coordinates, error) {
	key := normalize(location)
	c.mu.RLock()
	coords, ok := c.hits[key]
	c.mu.RUnlock()
	if ok {
		return coords, nil
	}

	coords, err := c.next.Resolve(ctx, location)
	if err != nil {
		return models.Coordinates{}, err
	}

	c.mu.Lock()
	c.hits[key] = coords
	c.mu.Unlock()
	return coords, nil
}

// Suggest passes through to the wrapped resolver. Suggestions are not cached.
func (c *Cache) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	s, ok := c.next.(Suggester)
	if !ok {
		return []string{}, nil
	}
	return s.Suggest(ctx, prefix, limit)
}

// Len reports how many locations are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hits)
}

func normalize(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
