package graphql

import (
	"encoding/json"
	"sync"
)

// Cache holds decoded query results keyed by operation text and variables.
// Mutations never go through it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]json.RawMessage)}
}

func (c *Cache) get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *Cache) put(key string, b json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
}

func (c *Cache) evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached result.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]json.RawMessage)
	c.mu.Unlock()
}

func cacheKey(r Request) (string, error) {
	b, err := json.Marshal(struct {
		Q string         `json:"q"`
		V map[string]any `json:"v"`
	}{r.Query, r.Variables})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
