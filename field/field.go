// Package field declares the scalar and relation field kinds a Model is
// built from, and the validation rules applied once at declaration time
// (ondelete derivation, primary-key type mapping, indexability checks).
//
// Fields are declared as static Go values at package init time instead of
// discovered by reflection on every access: a model lists its *Descriptor
// values once, and field.NewRegistry partitions them into the store/
// relation/m2m/json/compute buckets the query builder and ORM runtime need.
package field

import (
	"fmt"

	"github.com/dotorm/dotorm"
)

// Kind identifies a field's storage shape.
type Kind int

const (
	KindInteger Kind = iota
	KindBigInteger
	KindSmallInteger
	KindChar
	KindSelection
	KindText
	KindBoolean
	KindDecimal
	KindDatetime
	KindDate
	KindTime
	KindFloat
	KindJSON
	KindBinary
	KindMany2one
	KindOne2many
	KindMany2many
	KindOne2one
	KindPolymorphicMany2one
	KindPolymorphicOne2many
)

// OnDeleteAction is a foreign-key ON DELETE action.
type OnDeleteAction string

const (
	Restrict OnDeleteAction = "restrict"
	NoAction OnDeleteAction = "no action"
	Cascade  OnDeleteAction = "cascade"
	SetNull  OnDeleteAction = "set null"
)

func validOnDelete(a OnDeleteAction) bool {
	switch a {
	case Restrict, NoAction, Cascade, SetNull:
		return true
	default:
		return false
	}
}

// SelectOption is one (value, label) pair of a Selection field.
type SelectOption struct {
	Value string
	Label string
}

// Descriptor fully describes one field of a model: its kind, storage
// attributes, and (for relation kinds) the related model and link
// information.
type Descriptor struct {
	Name string
	Kind Kind

	// DB attributes.
	Index       bool
	PrimaryKey  bool
	Null        bool
	Unique      bool
	Description string
	OnDelete    OnDeleteAction

	// ORM attributes.
	Required       *bool
	SchemaRequired *bool
	SQLType        string
	Indexable      bool
	Store          bool
	Default        any

	// Char/Selection.
	MaxLength int
	Options   []SelectOption
	// selectionAdd marks a Selection declared purely to extend another
	// model's existing field (field.SelectionExtension), not to introduce
	// a new one. See ext.Registry.
	selectionAdd bool

	// Decimal.
	MaxDigits     int
	DecimalPlaces int

	// Compute.
	Compute func(row map[string]any) (any, error)

	// Relation (see relation.go for the constructors).
	RelationTarget      string
	RelationField       string // foreign key column name, or the related field for One2many/M2M
	LinkTable           string // Many2many join table
	LinkSourceColumn    string
	LinkTargetColumn    string
	PolymorphicTypeCol  string // discriminator column for polymorphic relations
	PolymorphicIDCol    string
}

// Option configures a Descriptor at construction time.
type Option func(*Descriptor)

// WithNull sets whether the column accepts NULL. Default true.
func WithNull(null bool) Option { return func(d *Descriptor) { d.Null = null } }

// WithRequired is the inverse convenience of WithNull: Required(true) means
// Null(false).
func WithRequired(required bool) Option {
	return func(d *Descriptor) {
		r := required
		d.Required = &r
		d.Null = !required
	}
}

// WithUnique adds a unique constraint.
func WithUnique(unique bool) Option { return func(d *Descriptor) { d.Unique = unique } }

// WithPrimaryKey marks the field as the model's primary key.
func WithPrimaryKey() Option { return func(d *Descriptor) { d.PrimaryKey = true } }

// WithIndex creates a plain index on the column.
func WithIndex(index bool) Option { return func(d *Descriptor) { d.Index = index } }

// WithDefault sets the column default.
func WithDefault(v any) Option { return func(d *Descriptor) { d.Default = v } }

// WithDescription attaches documentation surfaced in the generated JSON
// Schema.
func WithDescription(s string) Option { return func(d *Descriptor) { d.Description = s } }

// WithOnDelete overrides the auto-derived ON DELETE action.
func WithOnDelete(a OnDeleteAction) Option {
	return func(d *Descriptor) { d.OnDelete = a }
}

// WithSchemaRequired overrides whether the generated create/update JSON
// Schema marks this field required, independent of its null-ability.
func WithSchemaRequired(required bool) Option {
	return func(d *Descriptor) { d.SchemaRequired = &required }
}

// WithStore marks a field as non-persisted (store=false); it is computed at
// read time via WithCompute and never appears in INSERT/UPDATE statements.
func WithStore(store bool) Option { return func(d *Descriptor) { d.Store = store } }

// WithCompute attaches a read-time compute function. Implies WithStore(false).
func WithCompute(fn func(row map[string]any) (any, error)) Option {
	return func(d *Descriptor) {
		d.Store = false
		d.Compute = fn
	}
}

func newDescriptor(name string, kind Kind, sqlType string) *Descriptor {
	return &Descriptor{
		Name:      name,
		Kind:      kind,
		Null:      true,
		Indexable: true,
		Store:     true,
		SQLType:   sqlType,
	}
}

func apply(d *Descriptor, opts []Option) *Descriptor {
	for _, opt := range opts {
		opt(d)
	}
	resolveOnDelete(d)
	validate(d)
	return d
}

// resolveOnDelete implements the exact derivation rule from the original
// field base class: an explicit value is lower-cased and validated;
// otherwise null=true -> set null, null=false -> restrict.
func resolveOnDelete(d *Descriptor) {
	if d.OnDelete != "" {
		if !validOnDelete(d.OnDelete) {
			panic(dotorm.NewConfigurationError(d.Name, fmt.Sprintf("invalid ondelete value %q", d.OnDelete)))
		}
		return
	}
	if d.Null {
		d.OnDelete = SetNull
	} else {
		d.OnDelete = Restrict
	}
}

func validate(d *Descriptor) {
	if !d.Indexable && (d.Unique || d.Index) {
		panic(dotorm.NewConfigurationError(d.Name, "field kind can't be indexed"))
	}
	if d.PrimaryKey {
		d.Unique = true
		switch d.SQLType {
		case "INTEGER":
			d.SQLType = "SERIAL"
		case "BIGINT":
			d.SQLType = "BIGSERIAL"
		case "SMALLINT":
			d.SQLType = "SMALLSERIAL"
		default:
			panic(dotorm.NewConfigurationError(d.Name, "primary_key supported only for integer, bigint, smallint fields"))
		}
		if !d.Store {
			panic(dotorm.NewConfigurationError(d.Name, "primary_key requires store=true"))
		}
		d.Null = false
		if d.Index {
			panic(dotorm.NewConfigurationError(d.Name, "primary_key already implies an index"))
		}
		if d.Default != nil {
			panic(dotorm.NewConfigurationError(d.Name, "primary_key cannot also declare a default"))
		}
	}
	if d.Unique && d.Index {
		panic(dotorm.NewConfigurationError(d.Name, "unique already implies an index"))
	}
}

// Integer declares a 32-bit signed integer column.
func Integer(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindInteger, "INTEGER"), opts)
}

// BigInteger declares a 64-bit signed integer column.
func BigInteger(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindBigInteger, "BIGINT"), opts)
}

// SmallInteger declares a 16-bit signed integer column.
func SmallInteger(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindSmallInteger, "SMALLINT"), opts)
}

// Char declares a VARCHAR column, unbounded when maxLength is 0.
func Char(name string, maxLength int, opts ...Option) *Descriptor {
	if maxLength < 0 {
		panic(dotorm.NewConfigurationError(name, "max_length must be >= 0"))
	}
	d := newDescriptor(name, KindChar, "VARCHAR")
	d.MaxLength = maxLength
	if maxLength > 0 {
		d.SQLType = fmt.Sprintf("VARCHAR(%d)", maxLength)
	}
	return apply(d, opts)
}

// Text declares an unbounded TEXT column. It is never indexable: declaring
// WithUnique or WithIndex on a Text field is a *dotorm.ConfigurationError.
func Text(name string, opts ...Option) *Descriptor {
	d := newDescriptor(name, KindText, "TEXT")
	d.Indexable = false
	d = apply(d, opts)
	if d.Unique {
		panic(dotorm.NewConfigurationError(name, "text fields don't support unique indexes, use Char instead"))
	}
	return d
}

// Boolean declares a BOOL column.
func Boolean(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindBoolean, "BOOL"), opts)
}

// Decimal declares a fixed-precision DECIMAL(maxDigits, decimalPlaces)
// column.
func Decimal(name string, maxDigits, decimalPlaces int, opts ...Option) *Descriptor {
	if maxDigits < 1 {
		panic(dotorm.NewConfigurationError(name, "max_digits must be >= 1"))
	}
	if decimalPlaces < 0 {
		panic(dotorm.NewConfigurationError(name, "decimal_places must be >= 0"))
	}
	d := newDescriptor(name, KindDecimal, fmt.Sprintf("DECIMAL(%d,%d)", maxDigits, decimalPlaces))
	d.MaxDigits = maxDigits
	d.DecimalPlaces = decimalPlaces
	return apply(d, opts)
}

// Datetime declares a TIMESTAMPTZ column (DATETIME(6) on MySQL; resolved by
// the DDL engine per-dialect).
func Datetime(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindDatetime, "TIMESTAMPTZ"), opts)
}

// Date declares a DATE column.
func Date(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindDate, "DATE"), opts)
}

// Time declares a TIMETZ column (TIME(6) on MySQL).
func Time(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindTime, "TIMETZ"), opts)
}

// Float declares a DOUBLE PRECISION column (DOUBLE on MySQL).
func Float(name string, opts ...Option) *Descriptor {
	return apply(newDescriptor(name, KindFloat, "DOUBLE PRECISION"), opts)
}

// JSON declares a JSONB column (JSON on MySQL). Not indexable.
func JSON(name string, opts ...Option) *Descriptor {
	d := newDescriptor(name, KindJSON, "JSONB")
	d.Indexable = false
	return apply(d, opts)
}

// Binary declares a BYTEA column (VARBINARY on MySQL). Not indexable.
func Binary(name string, opts ...Option) *Descriptor {
	d := newDescriptor(name, KindBinary, "BYTEA")
	d.Indexable = false
	return apply(d, opts)
}

// SQLTypeFor resolves d's SQL type for the given dialect name, applying the
// per-dialect overrides the original field catalogue declares
// (_db_mysql/_db_postgres inner classes).
func SQLTypeFor(d *Descriptor, dialectName string) string {
	if dialectName != "mysql" {
		return d.SQLType
	}
	switch d.Kind {
	case KindText:
		return "LONGTEXT"
	case KindDatetime:
		return "DATETIME(6)"
	case KindTime:
		return "TIME(6)"
	case KindFloat:
		return "DOUBLE"
	case KindJSON:
		return "JSON"
	case KindBinary:
		return "VARBINARY(255)"
	default:
		return d.SQLType
	}
}
