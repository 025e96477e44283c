package settingscache

import (
	"context"
	"time"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/access"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
)

func searchByKey(key string) query.SearchOptions {
	return query.SearchOptions{Filter: []any{"key", "=", key}, Limit: 1}
}

func searchByFilter(filter any) query.SearchOptions {
	return query.SearchOptions{Filter: filter}
}

// Fields is the system_settings field.Registry: a key/value store for
// business configuration that can change without a server restart, as
// opposed to infrastructure parameters (database URL, secret keys) that
// stay in process environment.
func Fields() *field.Registry {
	return field.NewRegistry("system_settings",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("key", 255, field.WithRequired(true), field.WithUnique(true)),
		field.JSON("value"),
		field.Text("description"),
		field.Char("module", 128, field.WithDefault("general")),
		field.Boolean("is_system", field.WithDefault(false)),
		field.Integer("cache_ttl", field.WithDefault(0)),
	)
}

// Settings is the system_settings store: a model backed by the database,
// fronted by a Cache so repeated reads of the same key don't round-trip to
// SQL. Grounded on original_source's SystemSettings.get_value/set_value.
type Settings struct {
	model *orm.Model
	cache *Cache
}

// NewSettings pairs model (built from Fields()) with cache.
func NewSettings(model *orm.Model, cache *Cache) *Settings {
	return &Settings{model: model, cache: cache}
}

type settingRow struct {
	Value    any   `msgpack:"value"`
	CacheTTL int64 `msgpack:"cache_ttl"`
}

// Get returns the value stored under key. It checks the cache first; on a
// miss it reads system_settings directly, bypassing access.Checker, since
// settings are infrastructure-level configuration rather than user data.
//
// If the database read fails, Get falls back to the last-known-good
// cached value even if its TTL has since expired; only when no cached
// value exists at all does it propagate the error. This is the one place
// the runtime deliberately serves stale data over surfacing a failure,
// since a slightly out-of-date setting is preferable to a down database
// taking the rest of the request down with it.
func (s *Settings) Get(ctx context.Context, key string) (any, error) {
	if cached, ok := s.getCached(ctx, key); ok {
		return cached, nil
	}

	readCtx := access.WithChecker(ctx, access.AlwaysAllow{})
	rows, err := orm.Search(readCtx, s.model, searchByKey(key))
	if err != nil {
		if stale, ok := s.getStale(ctx, key); ok {
			return stale, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dotorm.NewNotFoundError("system_settings", key)
	}

	row := rows[0]
	ttl := toInt64(row["cache_ttl"])
	value := row["value"]

	encoded, err := Encode(settingRow{Value: value, CacheTTL: ttl})
	if err == nil {
		_ = s.cache.Set(ctx, key, encoded, ttlDuration(ttl))
	}
	return value, nil
}

// GetOrDefault is Get with fallback substituted for any error, for callers
// that would rather have a zero-value-like default than handle an error,
// such as original_source's get_base_url convenience wrapper.
func (s *Settings) GetOrDefault(ctx context.Context, key string, fallback any) any {
	value, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

func (s *Settings) getCached(ctx context.Context, key string) (any, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false
	}
	return decodeSettingValue(data)
}

func (s *Settings) getStale(ctx context.Context, key string) (any, bool) {
	data, ok := s.cache.GetStale(ctx, key)
	if !ok || data == nil {
		return nil, false
	}
	return decodeSettingValue(data)
}

func decodeSettingValue(data []byte) (any, bool) {
	var decoded settingRow
	if err := Decode(data, &decoded); err != nil {
		return nil, false
	}
	return decoded.Value, true
}

// Set upserts key with value, description, module, and cacheTTL, and
// invalidates any cached copy so the next Get reads the new value (and, if
// cacheTTL warrants it, repopulates the cache from it).
func (s *Settings) Set(ctx context.Context, key string, value any, description, module string, cacheTTL int64) error {
	_ = s.cache.Delete(ctx, key)

	ctx = access.WithChecker(ctx, access.AlwaysAllow{})
	rows, err := orm.Search(ctx, s.model, searchByKey(key))
	if err != nil {
		return err
	}

	payload := map[string]any{
		"value":       value,
		"description": description,
	}
	if len(rows) > 0 {
		return orm.Update(ctx, s.model, rows[0]["id"], payload)
	}

	payload["key"] = key
	payload["module"] = module
	payload["cache_ttl"] = cacheTTL
	_, err = orm.Create(ctx, s.model, payload)
	return err
}

// ByModule returns every setting belonging to module.
func (s *Settings) ByModule(ctx context.Context, module string) ([]orm.Row, error) {
	ctx = access.WithChecker(ctx, access.AlwaysAllow{})
	return orm.Search(ctx, s.model, searchByFilter([]any{"module", "=", module}))
}

// Default describes one entry EnsureDefaults seeds if it does not already
// exist.
type Default struct {
	Key         string
	Value       any
	Description string
	Module      string
	IsSystem    bool
	CacheTTL    int64
}

// EnsureDefaults creates every default not already present by key. Errors
// on individual rows are swallowed, matching the original's
// ensure_defaults, which is a best-effort startup seed rather than a
// migration that should abort boot on partial failure.
func (s *Settings) EnsureDefaults(ctx context.Context, defaults []Default) {
	ctx = access.WithChecker(ctx, access.AlwaysAllow{})
	for _, d := range defaults {
		rows, err := orm.Search(ctx, s.model, searchByKey(d.Key))
		if err != nil || len(rows) > 0 {
			continue
		}
		_, _ = orm.Create(ctx, s.model, map[string]any{
			"key":         d.Key,
			"value":       d.Value,
			"description": d.Description,
			"module":      d.Module,
			"is_system":   d.IsSystem,
			"cache_ttl":   d.CacheTTL,
		})
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// ttlDuration maps a system_settings cache_ttl integer (seconds) onto the
// dotorm.Cache convention: 0 bypasses the cache, negative means forever,
// positive is a count of seconds.
func ttlDuration(ttl int64) time.Duration {
	switch {
	case ttl == 0:
		return dotorm.Bypass
	case ttl < 0:
		return dotorm.Forever
	default:
		return time.Duration(ttl) * time.Second
	}
}
