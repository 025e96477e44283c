package dotorm

import (
	"context"
	"strconv"
	"time"
)

// Cache is the interface implemented by the system-settings cache and any
// other component that wants pluggable storage (in-memory, Redis,
// Memcached, ...).
//
// TTL follows the system-settings convention: 0 means "bypass the cache
// entirely" (Set stores nothing and drops any existing entry, so every Get
// is a miss), -1 means "cache forever" (no expiry check), and a positive
// duration expires normally. settingscache.Cache is the reference
// implementation of this contract.
type Cache interface {
	// Get retrieves a value from the cache. Returns nil, nil if the key
	// doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given key prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// Bypass and Forever are the two TTL sentinels the system-settings cache
// treats specially; any other duration is a normal expiry window.
const (
	Bypass  time.Duration = 0
	Forever time.Duration = -1
)

// CacheKey identifies one cached query result by its shape: table, verb,
// and the filter/sort/pagination parameters that distinguish otherwise
// identical queries.
type CacheKey struct {
	Table      string
	Operation  string
	Predicates string
	OrderBy    string
	Limit      int
	Offset     int
}

// String returns the cache key's canonical string form.
func (k CacheKey) String() string {
	return k.Table + ":" + k.Operation + ":" + k.Predicates + ":" + k.OrderBy + ":" + strconv.Itoa(k.Limit) + ":" + strconv.Itoa(k.Offset)
}
