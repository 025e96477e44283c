package field

import (
	"github.com/go-openapi/inflect"

	"github.com/dotorm/dotorm"
)

// Registry partitions a model's declared fields into the buckets the query
// builder, DDL engine, and ORM runtime each need, computed once at
// construction instead of re-derived by reflection on every access.
type Registry struct {
	Table string

	all      []*Descriptor
	byName   map[string]*Descriptor
	store    []*Descriptor // persisted scalar columns, including relation FKs
	relation []*Descriptor // any relation kind
	m2m      []*Descriptor // Many2many only
	o2m      []*Descriptor // One2many + PolymorphicOne2many
	m2o      []*Descriptor // Many2one + One2one + PolymorphicMany2one
	json     []*Descriptor // JSON-kind fields
	compute  []*Descriptor // Store=false scalar fields with a Compute func
	primary  *Descriptor
}

// NewRegistry builds a Registry for table from its field descriptors. It
// panics with a *dotorm.ConfigurationError if two fields share a name or no
// primary key is declared.
func NewRegistry(table string, fields ...*Descriptor) *Registry {
	r := &Registry{
		Table:  table,
		byName: make(map[string]*Descriptor, len(fields)),
	}
	for _, f := range fields {
		if _, dup := r.byName[f.Name]; dup {
			panic(dotorm.NewConfigurationError(table, "duplicate field name "+f.Name))
		}
		r.byName[f.Name] = f
		r.all = append(r.all, f)

		switch {
		case f.PrimaryKey:
			r.primary = f
			r.store = append(r.store, f)
		case f.IsRelation():
			r.relation = append(r.relation, f)
			switch f.Kind {
			case KindMany2many:
				r.m2m = append(r.m2m, f)
			case KindOne2many, KindPolymorphicOne2many:
				r.o2m = append(r.o2m, f)
			case KindMany2one, KindOne2one, KindPolymorphicMany2one:
				r.m2o = append(r.m2o, f)
				r.store = append(r.store, f)
			}
		case f.Kind == KindJSON:
			r.json = append(r.json, f)
			if f.Store {
				r.store = append(r.store, f)
			} else {
				r.compute = append(r.compute, f)
			}
		case !f.Store:
			r.compute = append(r.compute, f)
		default:
			r.store = append(r.store, f)
		}
	}
	if r.primary == nil {
		panic(dotorm.NewConfigurationError(table, "model declares no primary_key field"))
	}
	return r
}

// Field looks up a field by name.
func (r *Registry) Field(name string) (*Descriptor, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// MustField looks up a field by name and panics with an *InvariantError if
// absent; used where the caller has already validated the name exists.
func (r *Registry) MustField(name string) *Descriptor {
	f, ok := r.byName[name]
	if !ok {
		panic(dotorm.NewInvariantError("field: unknown field " + name + " on " + r.Table))
	}
	return f
}

// RoutePrefix returns the default URL path segment a generated REST
// resource for this table is mounted under: the table name pluralized,
// e.g. "task" -> "/tasks". Resource.Prefix overrides this when a route
// needs to diverge from its table name.
func (r *Registry) RoutePrefix() string {
	return "/" + inflect.Pluralize(r.Table)
}

// All returns every declared field, in declaration order.
func (r *Registry) All() []*Descriptor { return r.all }

// Store returns persisted scalar columns, including relation foreign keys.
func (r *Registry) Store() []*Descriptor { return r.store }

// StoreNames returns the persisted column names, using StorageColumns so
// relation foreign keys appear under their physical column name(s) rather
// than the field's friendly name.
func (r *Registry) StoreNames() []string {
	names := make([]string, 0, len(r.store))
	for _, f := range r.store {
		names = append(names, StorageColumns(f)...)
	}
	return names
}

// StorageColumns returns the physical SQL column name(s) f is persisted
// under: RelationField for Many2one/One2one, the PolymorphicTypeCol/
// PolymorphicIDCol pair for PolymorphicMany2one, and f.Name for every other
// stored kind. A field's Name is the Go/JSON-facing identifier; these are
// what actually appear in CREATE TABLE, SELECT, INSERT, and UPDATE.
func StorageColumns(f *Descriptor) []string {
	switch f.Kind {
	case KindMany2one, KindOne2one:
		return []string{f.RelationField}
	case KindPolymorphicMany2one:
		return []string{f.PolymorphicTypeCol, f.PolymorphicIDCol}
	default:
		return []string{f.Name}
	}
}

// Relations returns every relation-kind field.
func (r *Registry) Relations() []*Descriptor { return r.relation }

// Many2Many returns only the Many2many fields.
func (r *Registry) Many2Many() []*Descriptor { return r.m2m }

// One2Many returns the One2many and PolymorphicOne2many fields.
func (r *Registry) One2Many() []*Descriptor { return r.o2m }

// Many2One returns the Many2one, One2one, and PolymorphicMany2one fields.
func (r *Registry) Many2One() []*Descriptor { return r.m2o }

// JSON returns JSON-kind fields.
func (r *Registry) JSON() []*Descriptor { return r.json }

// Compute returns fields with Store=false and a Compute function.
func (r *Registry) Compute() []*Descriptor { return r.compute }

// PrimaryKey returns the model's primary key field.
func (r *Registry) PrimaryKey() *Descriptor { return r.primary }
