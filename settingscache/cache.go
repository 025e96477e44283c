// Package settingscache is the reference implementation of dotorm.Cache: an
// in-process, map-backed cache for the system_settings table, the way
// relabs-tech-kurbisio's access.AuthorizationCache keeps bearer-token
// authorizations in a mutex-guarded map instead of round-tripping to the
// database on every request.
package settingscache

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dotorm/dotorm"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means "never expires"
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is an in-memory dotorm.Cache keyed by setting name. It follows the
// system_settings cache_ttl convention verbatim: Set with ttl==
// dotorm.Bypass (0) never stores the value, so every subsequent Get is a
// miss; ttl==dotorm.Forever (-1) stores the value with no expiry; any
// positive ttl expires normally.
type Cache struct {
	mutex sync.RWMutex
	store map[string]entry

	now func() time.Time // overridable for tests
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{store: make(map[string]entry), now: time.Now}
}

// Get returns the cached bytes for key, or nil, nil if key is absent or has
// expired. Unlike Delete, an expired entry is left in place rather than
// evicted, so GetStale can still serve it as a last-known-good value if a
// subsequent backing-store read fails.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	e, ok := c.store[key]
	c.mutex.RUnlock()
	if !ok || e.expired(c.now()) {
		return nil, nil
	}
	return e.value, nil
}

// GetStale returns the bytes last stored under key regardless of expiry,
// and whether any entry exists at all. Settings.Get uses it to serve the
// last-known-good value when a backing-store read fails after the cache
// entry has expired.
func (c *Cache) GetStale(_ context.Context, key string) ([]byte, bool) {
	c.mutex.RLock()
	e, ok := c.store[key]
	c.mutex.RUnlock()
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given ttl. ttl == dotorm.Bypass
// deletes any existing entry instead of storing, mirroring the
// system_settings rule that cache_ttl==0 means "always read from the
// database".
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ttl == dotorm.Bypass {
		delete(c.store, key)
		return nil
	}
	e := entry{value: value}
	if ttl != dotorm.Forever {
		e.expiresAt = c.now().Add(ttl)
	}
	c.store[key] = e
	return nil
}

// Delete removes key from the cache. It is not an error for key to be
// absent.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	delete(c.store, key)
	c.mutex.Unlock()
	return nil
}

// DeletePrefix removes every key beginning with prefix, e.g. to invalidate
// an entire settings module ("mail." say) in one call.
func (c *Cache) DeletePrefix(_ context.Context, prefix string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for key := range c.store {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.store, key)
		}
	}
	return nil
}

// Clear empties the cache.
func (c *Cache) Clear(_ context.Context) error {
	c.mutex.Lock()
	c.store = make(map[string]entry)
	c.mutex.Unlock()
	return nil
}

// Encode msgpack-encodes v for storage with Set. system_settings values are
// arbitrary JSON-shaped documents (string, number, object, array, bool), so
// callers marshal once per write rather than per read.
func Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode msgpack-decodes bytes returned by Get into out.
func Decode(data []byte, out any) error {
	return msgpack.Unmarshal(data, out)
}
