package orm

import (
	"context"

	"github.com/dotorm/dotorm/access"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

// GetMany2Many fetches the related rows of one parent's Many2many field,
// paginated like a regular search, and decodes the target model's JSON
// columns; relation fields of the target model are not hydrated.
func GetMany2Many(ctx context.Context, m *Model, target *Model, rel *field.Descriptor, id any, fields []string, opts query.SearchOptions) ([]Row, error) {
	if err := access.Require(ctx, target.Registry.Table, access.Read); err != nil {
		return nil, err
	}
	stmt := m.Builder.BuildMany2Many(id, target.Builder, rel, fields, opts)
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetch)
	if err != nil {
		return nil, err
	}
	rows := result.([]Row)
	for _, row := range rows {
		decodeJSONFields(target.Registry, row)
	}
	return rows, nil
}

// LinkMany2Many inserts link-table rows between parentID and every id in
// targetIDs. Safe to call with an already-linked pair only if the link
// table has no unique constraint on (source, target); callers that need
// idempotent linking should unlink first.
func LinkMany2Many(ctx context.Context, m *Model, rel *field.Descriptor, parentID any, targetIDs []any) error {
	if len(targetIDs) == 0 {
		return nil
	}
	stmt := m.Builder.BuildMany2ManyLink(rel, parentID, targetIDs)
	_, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// UnlinkMany2Many deletes the link-table rows between parentID and every
// id in targetIDs.
func UnlinkMany2Many(ctx context.Context, m *Model, rel *field.Descriptor, parentID any, targetIDs []any) error {
	if len(targetIDs) == 0 {
		return nil
	}
	stmt := m.Builder.BuildMany2ManyUnlink(rel, parentID, targetIDs)
	_, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorVoid)
	return err
}

// RecursiveClosure returns rootID plus every id reachable by following
// rel (a self-referencing Many2many field on m) outward any number of
// hops, e.g. a role plus every role it is based on, transitively. Returns
// dotorm.ErrUnsupportedDialect on a dialect without WITH RECURSIVE support.
func RecursiveClosure(ctx context.Context, m *Model, rel *field.Descriptor, rootID any) ([]any, error) {
	if err := access.Require(ctx, m.Registry.Table, access.Read); err != nil {
		return nil, err
	}
	stmt, err := m.Builder.BuildRecursiveClosure(rel, rootID)
	if err != nil {
		return nil, err
	}
	result, err := m.activeSession(ctx).Execute(ctx, stmt, session.CursorFetch)
	if err != nil {
		return nil, err
	}
	rows := result.([]Row)
	pk := m.Registry.PrimaryKey().Name
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[pk]
	}
	return ids, nil
}
