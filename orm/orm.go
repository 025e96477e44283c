// Package orm is the runtime CRUD and relation-hydration layer built on
// top of query (SQL generation), session (execution), field (schema), and
// access (authorization). A Model pairs one table's field.Registry with
// the query.Builder that targets it; every operation is a plain function
// taking that Model explicitly, the Go equivalent of the original
// "hybrid method on an empty self" class-method trick — there is no
// implicit class state, only values passed at the call site.
package orm

import (
	"context"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/access"
	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"

	gojson "github.com/goccy/go-json"
)

// Row is one record as decoded off the wire.
type Row = map[string]any

// Model binds a table's field.Registry to the query.Builder targeting it,
// plus the Session used when no transaction is active on the context.
type Model struct {
	Registry *field.Registry
	Builder  *query.Builder
	Default  session.Session
}

// NewModel builds the query.Builder for r against d and pairs both with
// the default (no-transaction) session used outside an explicit
// transaction block.
func NewModel(d dialect.Dialect, r *field.Registry, def session.Session) *Model {
	return &Model{Registry: r, Builder: query.NewBuilder(r.Table, d, r), Default: def}
}

// activeSession resolves, in priority order, the transaction joined via
// session.WithTx on ctx, then m.Default. This mirrors the original
// DotModel._get_db_session priority (explicit session, then context
// transaction, then autocommit fallback) minus the "explicit session"
// step, which Go callers express by passing ctx built from session.WithTx
// themselves rather than a hidden third parameter.
func (m *Model) activeSession(ctx context.Context) session.Session {
	if s, ok := session.FromContext(ctx); ok {
		return s
	}
	return m.Default
}

// Session resolves the same active session as activeSession, exported for
// callers outside the package (the router's relation-hydration step) that
// need to drive HydrateRelations themselves instead of through a Model
// method.
func (m *Model) Session(ctx context.Context) session.Session {
	return m.activeSession(ctx)
}

// Get fetches one row by primary key. fields defaults to every stored
// column. Returns a *dotorm.NotFoundError if no row matches.
func Get(ctx context.Context, m *Model, id any, fields []string) (Row, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Read); err != nil {
		return nil, err
	}
	if err := access.RequireRows(ctx, m.Registry.Table, access.Read, []any{id}); err != nil {
		return nil, err
	}
	stmt := m.Builder.BuildGet(id, fields)
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetchOne)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, dotorm.NewNotFoundError(m.Registry.Table, id)
	}
	row := result.(Row)
	decodeJSONFields(m.Registry, row)
	return row, nil
}

// Search runs a filtered, sorted, paginated SELECT, merging in the active
// access.Checker's domain filter (if any) alongside the caller's.
func Search(ctx context.Context, m *Model, opts query.SearchOptions) ([]Row, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Read); err != nil {
		return nil, err
	}
	domain, err := access.FromContext(ctx).GetDomainFilter(ctx, m.Registry.Table, access.Read)
	if err != nil {
		return nil, err
	}
	opts.Filter = mergeFilters(opts.Filter, domain)

	stmt, err := m.Builder.BuildSearch(opts)
	if err != nil {
		return nil, err
	}
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetch)
	if err != nil {
		return nil, err
	}
	rows := result.([]Row)
	for _, row := range rows {
		decodeJSONFields(m.Registry, row)
	}
	return rows, nil
}

// Count returns the number of rows matching rawFilter (nil for all rows),
// merged with the active access.Checker's domain filter.
func Count(ctx context.Context, m *Model, rawFilter any) (int64, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Read); err != nil {
		return 0, err
	}
	domain, err := access.FromContext(ctx).GetDomainFilter(ctx, m.Registry.Table, access.Read)
	if err != nil {
		return 0, err
	}
	stmt, err := m.Builder.BuildCount(mergeFilters(rawFilter, domain))
	if err != nil {
		return 0, err
	}
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetchOne)
	if err != nil {
		return 0, err
	}
	if result == nil {
		return 0, nil
	}
	return toInt64(result.(Row)["count"]), nil
}

// Exists reports whether any row matches rawFilter.
func Exists(ctx context.Context, m *Model, rawFilter any) (bool, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Read); err != nil {
		return false, err
	}
	domain, err := access.FromContext(ctx).GetDomainFilter(ctx, m.Registry.Table, access.Read)
	if err != nil {
		return false, err
	}
	stmt, err := m.Builder.BuildExists(mergeFilters(rawFilter, domain))
	if err != nil {
		return false, err
	}
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetchOne)
	if err != nil {
		return false, err
	}
	return result != nil, nil
}

// Create inserts one row built from payload (store fields only; relation
// commands are handled separately by ApplyRelationCommands) and returns
// the generated primary key.
func Create(ctx context.Context, m *Model, payload map[string]any) (any, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Create); err != nil {
		return nil, err
	}
	encoded, err := encodeJSONFields(m.Registry, payload)
	if err != nil {
		return nil, err
	}
	stmt := m.Builder.BuildCreate(encoded)
	return m.activeSession(ctx).Execute(ctx, stmt, session.CursorLastInsertID)
}

// CreateBulk inserts every row in payloads in one statement. All payloads
// must share the same key set.
func CreateBulk(ctx context.Context, m *Model, payloads []map[string]any) error {
	if err := access.Require(ctx, m.Registry.Table, access.Create); err != nil {
		return err
	}
	encoded := make([]map[string]any, len(payloads))
	for i, p := range payloads {
		enc, err := encodeJSONFields(m.Registry, p)
		if err != nil {
			return err
		}
		encoded[i] = enc
	}
	stmt, err := m.Builder.BuildCreateBulk(encoded)
	if err != nil {
		return err
	}
	_, err = m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// CreateBulkReturningIDs is CreateBulk, but also returns each inserted
// row's generated primary key in insertion order. Used when nested
// Many2many "created" rows must be linked to their parent right after
// insertion; requires a dialect with RETURNING support (Postgres).
func CreateBulkReturningIDs(ctx context.Context, m *Model, payloads []map[string]any) ([]any, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Create); err != nil {
		return nil, err
	}
	encoded := make([]map[string]any, len(payloads))
	for i, p := range payloads {
		enc, err := encodeJSONFields(m.Registry, p)
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
	}
	stmt, err := m.Builder.BuildCreateBulk(encoded)
	if err != nil {
		return nil, err
	}
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetch)
	if err != nil {
		return nil, err
	}
	pk := m.Registry.PrimaryKey().Name
	rows := result.([]Row)
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[pk]
	}
	return ids, nil
}

// Update applies payload to the row identified by id.
func Update(ctx context.Context, m *Model, id any, payload map[string]any) error {
	if err := access.Require(ctx, m.Registry.Table, access.Update); err != nil {
		return err
	}
	if err := access.RequireRows(ctx, m.Registry.Table, access.Update, []any{id}); err != nil {
		return err
	}
	encoded, err := encodeJSONFields(m.Registry, payload)
	if err != nil {
		return err
	}
	stmt, err := m.Builder.BuildUpdate(encoded, id)
	if err != nil {
		return err
	}
	_, err = m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// UpdateBulk applies the same payload to every row in ids.
func UpdateBulk(ctx context.Context, m *Model, ids []any, payload map[string]any) error {
	if err := access.Require(ctx, m.Registry.Table, access.Update); err != nil {
		return err
	}
	if err := access.RequireRows(ctx, m.Registry.Table, access.Update, ids); err != nil {
		return err
	}
	encoded, err := encodeJSONFields(m.Registry, payload)
	if err != nil {
		return err
	}
	stmt, err := m.Builder.BuildUpdateBulk(encoded, ids)
	if err != nil {
		return err
	}
	_, err = m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// Delete removes the row identified by id.
func Delete(ctx context.Context, m *Model, id any) error {
	if err := access.Require(ctx, m.Registry.Table, access.Delete); err != nil {
		return err
	}
	if err := access.RequireRows(ctx, m.Registry.Table, access.Delete, []any{id}); err != nil {
		return err
	}
	stmt := m.Builder.BuildDelete(id)
	_, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// DeleteBulk removes every row in ids. Per the delete_bulk Open Question
// decision, row access is checked once across the whole id list and the
// entire operation is rejected if any id would be denied, rather than
// silently partial-deleting.
func DeleteBulk(ctx context.Context, m *Model, ids []any) error {
	if err := access.Require(ctx, m.Registry.Table, access.Delete); err != nil {
		return err
	}
	if err := access.RequireRows(ctx, m.Registry.Table, access.Delete, ids); err != nil {
		return err
	}
	stmt := m.Builder.BuildDeleteBulk(ids)
	_, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

func mergeFilters(existing, domain any) any {
	if domain == nil {
		return existing
	}
	if existing == nil {
		return domain
	}
	return []any{existing, domain}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// decodeJSONFields unmarshals any JSON-kind column that came back as a
// string (drivers that don't natively decode jsonb/json return the raw
// text) into its Go value in place.
func decodeJSONFields(r *field.Registry, row Row) {
	for _, f := range r.JSON() {
		raw, ok := row[f.Name].(string)
		if !ok || raw == "" {
			continue
		}
		var decoded any
		if err := gojson.Unmarshal([]byte(raw), &decoded); err == nil {
			row[f.Name] = decoded
		}
	}
}

// encodeJSONFields returns a copy of payload ready to hand to
// query.Builder.BuildCreate/BuildUpdate: any JSON-kind value that isn't
// already a string is marshaled to its JSON text form, and every key naming
// a Many2one/One2one/PolymorphicMany2one field is rewritten from its
// friendly field name to the physical column it is stored under (see
// field.StorageColumns) — the payload's keys become literal SQL column
// names once BuildCreate/BuildUpdate see them, so this is the one place
// that translation has to happen for every write path (top-level Create/
// Update and nested relation-command Created rows alike).
//
// PolymorphicMany2one only carries its id column through this path: the
// generic write payload has no way to name which table that id belongs to,
// so only PolymorphicOne2many's nested-create path (which already knows its
// own table) sets the discriminator column correctly.
func encodeJSONFields(r *field.Registry, payload map[string]any) (map[string]any, error) {
	jsonNames := make(map[string]bool, len(r.JSON()))
	for _, f := range r.JSON() {
		jsonNames[f.Name] = true
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		col := k
		if f, ok := r.Field(k); ok {
			switch f.Kind {
			case field.KindMany2one, field.KindOne2one:
				col = f.RelationField
			case field.KindPolymorphicMany2one:
				col = f.PolymorphicIDCol
			}
		}
		if jsonNames[k] {
			if _, isString := v.(string); !isString && v != nil {
				encoded, err := gojson.Marshal(v)
				if err != nil {
					return nil, dotorm.NewInvariantError("orm: failed to encode JSON field " + k + ": " + err.Error())
				}
				out[col] = string(encoded)
				continue
			}
		}
		out[col] = v
	}
	return out, nil
}
