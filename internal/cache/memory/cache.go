// Package memory provides an in-process cache for analytics aggregates.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/topcv-job-insights/internal/crawler"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache implements crawler.Cache with a mutex-guarded map. Expired entries are
// dropped lazily on read.
type Cache struct {
	mu      sync.Mutex
	clock   crawler.Clock
	entries map[string]entry
}

var _ crawler.Cache = (*Cache)(nil)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New returns an empty cache. A nil clock uses the wall clock.
func New(clock crawler.Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache{clock: clock, entries: make(map[string]entry)}
}

// Get returns a copy of the cached value.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value under key. A non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (c *Cache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
