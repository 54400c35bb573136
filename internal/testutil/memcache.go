package testutil

import (
	"context"
	"sort"
	"sync"
)

// MemCache is an in-memory local cache.
type MemCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int

	// SetErr, when set, is returned by Set.
	SetErr error
}

// NewMemCache returns an empty cache.
func NewMemCache() *MemCache {
	return &MemCache{data: map[string]string{}}
}

func (c *MemCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *MemCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.data[key] = value
	c.sets++
	return nil
}

func (c *MemCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *MemCache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Sets returns how many Set calls succeeded.
func (c *MemCache) Sets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}
