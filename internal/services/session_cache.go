package services

import "sync"

// SessionCache remembers content keys already shown so repeated calls surface
// new titles. Each operation is individually safe for concurrent use; there is
// no atomicity across calls. Scope returns a child cache with its own lifetime,
// e.g. one per user or per screen.
type SessionCache struct {
	mu     sync.RWMutex
	shown  map[string]struct{}
	scopes map[string]*SessionCache
}

func NewSessionCache() *SessionCache {
	return &SessionCache{
		shown:  make(map[string]struct{}),
		scopes: make(map[string]*SessionCache),
	}
}

func (c *SessionCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.shown[key]
	return ok
}

func (c *SessionCache) Add(key string) {
	c.mu.Lock()
	c.shown[key] = struct{}{}
	c.mu.Unlock()
}

func (c *SessionCache) AddAll(keys []string) {
	c.mu.Lock()
	for _, k := range keys {
		c.shown[k] = struct{}{}
	}
	c.mu.Unlock()
}

// Clear forgets every shown key in this cache. Child scopes are untouched.
func (c *SessionCache) Clear() {
	c.mu.Lock()
	c.shown = make(map[string]struct{})
	c.mu.Unlock()
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shown)
}

// Scope returns the named child cache, creating it on first use.
func (c *SessionCache) Scope(name string) *SessionCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	child, ok := c.scopes[name]
	if !ok {
		child = NewSessionCache()
		c.scopes[name] = child
	}
	return child
}

// DropScope discards a child cache entirely.
func (c *SessionCache) DropScope(name string) {
	c.mu.Lock()
	delete(c.scopes, name)
	c.mu.Unlock()
}
