// Package cache stores per-direction sweep plans so that repeated runs on
// the same mesh skip dependency analysis and cycle removal.
//
// A plan depends only on the partition's local mesh, the direction and the
// ordering options, so it is keyed by a hash of those ([Keyer.PlanKey]).
// Backends:
//   - [NullCache]: never stores anything (caching disabled)
//   - [FileCache]: JSON entries under a directory, for CLI runs
//   - [RedisCache]: a shared Redis instance, for multi-process runs
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// PlanKeyOpts are the inputs besides the mesh that determine a plan.
type PlanKeyOpts struct {
	Omega       [3]float64
	AllowCycles bool
	Tolerance   float64
}

// Keyer derives cache keys.
type Keyer interface {
	PlanKey(meshHash string, opts PlanKeyOpts) string
}

// DefaultKeyer produces "plan:<sha256>" keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// PlanKey hashes the mesh hash together with the options.
func (DefaultKeyer) PlanKey(meshHash string, opts PlanKeyOpts) string {
	return hashKey("plan", meshHash, opts)
}
