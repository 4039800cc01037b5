package storage

import (
	"context"
	"errors"
	"time"
)

// Layer identifies which tier served a read.
type Layer string

const (
	LayerMemory   Layer = "memory"
	LayerRedis    Layer = "redis"
	LayerPostgres Layer = "postgres"
)

var (
	// ErrNotFound is returned when a key is absent, or expired, in the tier consulted.
	ErrNotFound = errors.New("storage: key not found")

	// ErrInvalidTTL is returned when a negative TTL is supplied.
	// A zero TTL means the entry never expires, not that it expires immediately.
	ErrInvalidTTL = errors.New("storage: ttl must not be negative")

	// ErrNotConnected is returned by tiers whose backend is unavailable.
	ErrNotConnected = errors.New("storage: backend not connected")
)

// Tier is the contract shared by the memory, redis and postgres tiers.
// Values are UTF-8 JSON bytes; tiers are opaque to payload shape.
type Tier interface {
	// Get returns the value for key, or ErrNotFound if the key is absent
	// or its entry has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores data under key. ttl == 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping reports backend liveness.
	Ping(ctx context.Context) error
}

// Result describes a successful read through the engine.
type Result struct {
	Data []byte
	// Layer is the tier that served the read.
	Layer Layer
	// CacheHit is true when the value came from L1 or L2. A postgres read
	// is served from the source of truth and counts as a cache miss.
	CacheHit bool
}
