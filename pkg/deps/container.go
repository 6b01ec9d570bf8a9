package deps

import "sync"

// Container holds dependency overrides for one scope. Production code builds
// one long-lived, usually empty container; each test builds its own.
type Container struct {
	mu        sync.RWMutex
	overrides map[Key]any
}

// NewContainer creates a container with no overrides
func NewContainer() *Container {
	return &Container{
		overrides: make(map[Key]any),
	}
}

// SetOverride substitutes value for the production provider of key.
// Test-only.
func (c *Container) SetOverride(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[key] = value
}

// ClearOverrides removes every override. Test-only.
func (c *Container) ClearOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides = make(map[Key]any)
}

// Override returns the override for key, if any. Safe on a nil container.
func (c *Container) Override(key Key) (any, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.overrides[key]
	return v, ok
}

// Len returns the number of overrides
func (c *Container) Len() int {
	if c == nil {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.overrides)
}
