package preference

import (
	"errors"
	"sync"

	"github.com/ajisai-dev/huesync/internal/logging"
)

// Cache is the in-memory mirror of the persisted identity→color mapping.
// Reads load through the store on first miss; writes update the mirror first
// so a store failure never hides the new value from subsequent snapshots.
type Cache struct {
	mu     sync.Mutex
	store  Store
	colors map[string]string
	logger *logging.Logger
}

// NewCache creates a cache over the given store
func NewCache(store Store, logger *logging.Logger) *Cache {
	return &Cache{
		store:  store,
		colors: make(map[string]string),
		logger: logger,
	}
}

// Color returns the cached color for an identity, loading it from the store
// on first miss. Absent records and store failures both resolve to
// DefaultColor; only the failure is logged and left uncached so a later read
// can retry.
func (c *Cache) Color(identity string) string {
	c.mu.Lock()
	if color, ok := c.colors[identity]; ok {
		c.mu.Unlock()
		return color
	}
	c.mu.Unlock()

	rec, err := c.store.Get(identity)
	switch {
	case err == nil:
		c.mu.Lock()
		c.colors[identity] = rec.Color
		c.mu.Unlock()
		return rec.Color
	case errors.Is(err, ErrNotFound):
		c.mu.Lock()
		c.colors[identity] = DefaultColor
		c.mu.Unlock()
		return DefaultColor
	default:
		c.logger.Error("preference store read failed",
			"identity", identity,
			"error", err,
		)
		return DefaultColor
	}
}

// SetColor updates the mirror and writes through to the store. The mirror
// keeps the new value even when persistence fails; the returned error is for
// the caller's log line only.
func (c *Cache) SetColor(identity, value string) error {
	c.mu.Lock()
	c.colors[identity] = value
	c.mu.Unlock()

	if _, err := c.store.Set(identity, KeyColor, value); err != nil {
		return err
	}
	return nil
}
