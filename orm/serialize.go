package orm

import (
	"fmt"

	"github.com/dotorm/dotorm/field"
)

// Mode selects how relation-valued fields are reduced when serializing a
// hydrated Row to its wire representation, mirroring the original
// catalogue's four JSON modes.
type Mode int

const (
	// ModeList reduces every relation to {id, name} (or a list of them),
	// the shape used by search/list responses.
	ModeList Mode = iota
	// ModeForm keeps relation values fully nested, for a single-record
	// get response with nested fields requested.
	ModeForm
	// ModeNestedList is used for relation values one level below a
	// ModeForm record: the nested rows are passed through without a
	// further round of {id, name} reduction.
	ModeNestedList
	// ModeCreate and ModeUpdate reduce Many2one-family relations to just
	// their id, the shape the query builder's payload expects; to-many
	// relations are left for ApplyRelationCommands to handle separately.
	ModeCreate
	ModeUpdate
)

// Serialize reduces row's relation-valued fields according to mode and
// returns a new Row ready to marshal to JSON. Non-relation fields pass
// through unchanged.
func Serialize(r *field.Registry, row Row, mode Mode) Row {
	out := make(Row, len(row))
	for name, value := range row {
		f, ok := r.Field(name)
		if !ok || !f.IsRelation() {
			out[name] = value
			continue
		}
		out[name] = serializeRelationValue(f, value, mode)
	}
	return out
}

func serializeRelationValue(f *field.Descriptor, value any, mode Mode) any {
	if value == nil {
		if f.IsToMany() {
			return []Row{}
		}
		return nil
	}

	if f.IsToMany() {
		rows, ok := value.([]Row)
		if !ok {
			return value
		}
		if mode == ModeList {
			out := make([]Row, len(rows))
			for i, r := range rows {
				out[i] = summarize(r)
			}
			return out
		}
		// ModeForm, ModeNestedList, ModeCreate, ModeUpdate: pass the
		// already-hydrated rows through as-is.
		return rows
	}

	row, ok := value.(Row)
	if !ok {
		// Not hydrated: still the raw foreign key scalar from the store.
		return value
	}
	switch mode {
	case ModeList:
		return summarize(row)
	case ModeCreate, ModeUpdate:
		return row["id"]
	default: // ModeForm, ModeNestedList
		return row
	}
}

// summarize reduces a hydrated related row to the {id, name} shape used
// everywhere a relation only needs to be displayed, not edited. Falls
// back to the stringified id when the related model has no "name" column.
func summarize(row Row) Row {
	name, _ := row["name"].(string)
	if name == "" {
		if id, ok := row["id"]; ok {
			name = fmt.Sprint(id)
		}
	}
	return Row{"id": row["id"], "name": name}
}
