package field

import "fmt"

// RelationOption configures a relation Descriptor.
type RelationOption func(*Descriptor)

// WithRelationOnDelete overrides the FK's ON DELETE action (Many2one,
// One2one, PolymorphicMany2one only).
func WithRelationOnDelete(a OnDeleteAction) RelationOption {
	return func(d *Descriptor) { d.OnDelete = a }
}

// WithRelationNull controls whether the FK column accepts NULL.
func WithRelationNull(null bool) RelationOption {
	return func(d *Descriptor) { d.Null = null }
}

// Many2one declares a foreign key column on this model pointing at one row
// of target. column defaults to "<name>_id" when empty.
func Many2one(name, target, column string, opts ...RelationOption) *Descriptor {
	if column == "" {
		column = name + "_id"
	}
	d := &Descriptor{
		Name:           name,
		Kind:           KindMany2one,
		Null:           true,
		Indexable:      true,
		Store:          true,
		SQLType:        "INTEGER",
		RelationTarget: target,
		RelationField:  column,
	}
	for _, opt := range opts {
		opt(d)
	}
	resolveOnDelete(d)
	return d
}

// One2many declares the inverse side of a Many2one: all rows of target
// whose foreignField points back at this row. It is never stored as a
// column; it is hydrated by a batched relation query.
func One2many(name, target, foreignField string) *Descriptor {
	return &Descriptor{
		Name:           name,
		Kind:           KindOne2many,
		Store:          false,
		RelationTarget: target,
		RelationField:  foreignField,
	}
}

// One2one declares a unique foreign key column on this model pointing at
// at most one row of target. Identical to Many2one with an added unique
// constraint on the FK column.
func One2one(name, target, column string, opts ...RelationOption) *Descriptor {
	d := Many2one(name, target, column, opts...)
	d.Kind = KindOne2one
	d.Unique = true
	return d
}

// Many2many declares a many-to-many relation through linkTable, with
// sourceColumn referencing this model's primary key and targetColumn
// referencing target's primary key. When linkTable is empty the DDL engine
// creates the link table as "<this>_<target>_rel"; the query builder uses
// LinkTable as given.
func Many2many(name, target, linkTable, sourceColumn, targetColumn string) *Descriptor {
	if sourceColumn == "" || targetColumn == "" {
		panic(fmt.Errorf("field: many2many %q requires explicit link columns", name))
	}
	return &Descriptor{
		Name:             name,
		Kind:             KindMany2many,
		Store:            false,
		RelationTarget:   target,
		LinkTable:        linkTable,
		LinkSourceColumn: sourceColumn,
		LinkTargetColumn: targetColumn,
	}
}

// PolymorphicMany2one declares a foreign key whose target model is decided
// at read time by typeColumn (a Selection-like string column holding a
// table name), with idColumn holding the target row's id. Used by
// attachment/activity-style "belongs to any of several models" relations.
func PolymorphicMany2one(name, typeColumn, idColumn string, opts ...RelationOption) *Descriptor {
	d := &Descriptor{
		Name:               name,
		Kind:               KindPolymorphicMany2one,
		Null:               true,
		Store:              true,
		SQLType:            "INTEGER",
		PolymorphicTypeCol: typeColumn,
		PolymorphicIDCol:   idColumn,
	}
	for _, opt := range opts {
		opt(d)
	}
	resolveOnDelete(d)
	return d
}

// PolymorphicOne2many declares the inverse side of a
// PolymorphicMany2one: all rows across potentially many tables whose
// typeColumn/idColumn pair points back at this model's name and id.
func PolymorphicOne2many(name, typeColumn, idColumn, targetTable string) *Descriptor {
	return &Descriptor{
		Name:               name,
		Kind:               KindPolymorphicOne2many,
		Store:              false,
		RelationTarget:     targetTable,
		PolymorphicTypeCol: typeColumn,
		PolymorphicIDCol:   idColumn,
	}
}

// IsRelation reports whether d's kind is any relation kind.
func (d *Descriptor) IsRelation() bool {
	switch d.Kind {
	case KindMany2one, KindOne2many, KindMany2many, KindOne2one,
		KindPolymorphicMany2one, KindPolymorphicOne2many:
		return true
	default:
		return false
	}
}

// RelationKeyColumn returns the physical column that ties a relation field
// back to its parent row: RelationField for Many2one/One2one/One2many, and
// PolymorphicIDCol for the polymorphic kinds, which have no RelationField.
func (d *Descriptor) RelationKeyColumn() string {
	switch d.Kind {
	case KindPolymorphicMany2one, KindPolymorphicOne2many:
		return d.PolymorphicIDCol
	default:
		return d.RelationField
	}
}

// IsToMany reports whether d can hold more than one related row.
func (d *Descriptor) IsToMany() bool {
	switch d.Kind {
	case KindOne2many, KindMany2many, KindPolymorphicOne2many:
		return true
	default:
		return false
	}
}
