package orm

import (
	"context"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/field"
)

// RelationCommand is the nested write changeset for a to-many relation
// field in an update payload: {created, deleted, selected, unselected}.
// One2many/PolymorphicOne2many only use Created+Deleted; Many2many only
// uses Created+Selected+Unselected.
type RelationCommand struct {
	Created    []map[string]any // new related rows to insert
	Deleted    []any            // related ids to delete (One2many only)
	Selected   []any            // target ids to link (Many2many only)
	Unselected []any            // target ids to unlink (Many2many only)
}

// VirtualID is the placeholder a client substitutes, in a nested Created
// row's Many2one/PolymorphicMany2one column, for "the id of the parent
// record this update is writing" — a value the client can't know before
// the parent write completes.
const VirtualID = "VirtualId"

// ApplyRelationCommands applies cmd for the to-many relation field rel
// owned by parent m at parentID, against related (the Model registered
// for rel's target table).
func ApplyRelationCommands(ctx context.Context, m *Model, related *Model, rel *field.Descriptor, parentID any, cmd RelationCommand) error {
	switch rel.Kind {
	case field.KindOne2many, field.KindPolymorphicOne2many:
		for _, row := range cmd.Created {
			substituteVirtualID(related.Registry, row, parentID)
			if rel.Kind == field.KindPolymorphicOne2many {
				row[rel.PolymorphicIDCol] = parentID
				row[rel.PolymorphicTypeCol] = m.Registry.Table
			} else {
				row[rel.RelationField] = parentID
			}
		}
		if len(cmd.Created) > 0 {
			if err := CreateBulk(ctx, related, cmd.Created); err != nil {
				return err
			}
		}
		if len(cmd.Deleted) > 0 {
			if err := DeleteBulk(ctx, related, cmd.Deleted); err != nil {
				return err
			}
		}
		return nil

	case field.KindMany2many:
		for _, row := range cmd.Created {
			substituteVirtualID(related.Registry, row, parentID)
		}
		selected := append([]any{}, cmd.Selected...)
		if len(cmd.Created) > 0 {
			createdIDs, err := CreateBulkReturningIDs(ctx, related, cmd.Created)
			if err != nil {
				return err
			}
			selected = append(selected, createdIDs...)
		}
		if len(selected) > 0 {
			if err := LinkMany2Many(ctx, m, rel, parentID, selected); err != nil {
				return err
			}
		}
		if len(cmd.Unselected) > 0 {
			if err := UnlinkMany2Many(ctx, m, rel, parentID, cmd.Unselected); err != nil {
				return err
			}
		}
		return nil

	default:
		return dotorm.NewInvariantError("orm: ApplyRelationCommands called on non-to-many field " + rel.Name)
	}
}

// substituteVirtualID replaces VirtualID in any Many2one/PolymorphicMany2one
// column of row with parentID, the way the original relations mixin
// resolves a nested create's forward reference to the record being
// written right now.
func substituteVirtualID(r *field.Registry, row map[string]any, parentID any) {
	for col, val := range row {
		s, ok := val.(string)
		if !ok || s != VirtualID {
			continue
		}
		if f, ok := r.Field(col); ok && (f.Kind == field.KindMany2one || f.Kind == field.KindPolymorphicMany2one) {
			row[col] = parentID
		}
	}
}
