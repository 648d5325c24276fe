// Package preference persists the per-identity display preferences and
// mirrors them in memory for broadcast snapshot construction. The Store
// contract is deliberately narrow so a file, an embedded database, or a
// remote store can back it interchangeably.
package preference

import (
	"errors"
	"time"
)

// DefaultColor is the sentinel color used when an identity has no stored
// preference or the store cannot be reached.
const DefaultColor = "rgb(255,255,255)"

// KeyColor is the only preference key the stores accept
const KeyColor = "color"

// ErrNotFound is returned when an identity has no stored record
var ErrNotFound = errors.New("preference not found")

// ErrUnsupportedKey is returned for preference keys the store does not hold
var ErrUnsupportedKey = errors.New("unsupported preference key")

// Record is the persisted preference state of one identity
type Record struct {
	Color       string    `json:"color"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// Store is the external persistence contract
type Store interface {
	// Get returns the record for an identity, or ErrNotFound
	Get(identity string) (Record, error)

	// Set writes one preference key and returns the persisted record with a
	// refreshed LastUpdated
	Set(identity, key, value string) (Record, error)

	// Close releases any underlying resources
	Close() error
}
