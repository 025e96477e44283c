// Package ddl generates and applies the CREATE TABLE / ADD COLUMN / index /
// foreign-key statements a field.Registry implies for one dialect.
//
// Table creation is idempotent: CREATE TABLE IF NOT EXISTS, plus a
// single information_schema.columns probe per table to add only the
// columns a previous version of the model didn't already have. Foreign
// keys are generated but not applied inline — CreateTable returns them so
// a migration driver can apply every FK only once every table in the
// batch exists, avoiding ordering problems between models that reference
// each other.
package ddl

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

// ForeignKey is a deferred ALTER TABLE ... ADD CONSTRAINT statement.
type ForeignKey struct {
	Name string
	SQL  string
}

// Engine builds and executes DDL statements for one dialect.
type Engine struct {
	Dialect dialect.Dialect
}

// New returns an Engine targeting d.
func New(d dialect.Dialect) *Engine {
	return &Engine{Dialect: d}
}

// CreateTable creates r's table (and any Many2many link tables it owns) if
// they don't already exist, adds any store columns missing from an
// existing table, and creates plain and link-table indexes. It returns the
// foreign-key constraints it could not add inline, for the caller to apply
// once every table in the migration batch exists via ApplyForeignKeys.
//
// Clickhouse has no auto-increment/identity column concept, so a model
// declaring a primary key field targeting Clickhouse is rejected outright
// rather than silently generating an unsupported column type.
func (e *Engine) CreateTable(ctx context.Context, sess session.Session, r *field.Registry) ([]ForeignKey, error) {
	if e.Dialect.Name() == dialect.Clickhouse {
		return nil, dotorm.NewConfigurationError(r.Table, "clickhouse dialect does not support models with a primary key")
	}

	columnByName := make(map[string]string, len(r.Store()))
	var columnDecls, indexStmts []string
	var fks []ForeignKey

	for _, f := range r.Store() {
		decls, err := e.columnDeclarations(f)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			columnDecls = append(columnDecls, d.sql)
			columnByName[d.name] = d.sql
		}

		switch f.Kind {
		case field.KindMany2one, field.KindOne2one:
			if f.RelationTarget != "" {
				fks = append(fks, e.many2oneForeignKey(r.Table, f))
			}
		case field.KindPolymorphicMany2one:
			// The target table varies per row, so no single FOREIGN KEY
			// constraint can reference it; f.PolymorphicTypeCol is the only
			// record of which table a given row's PolymorphicIDCol belongs to.
		}

		if f.Index && !f.PrimaryKey && !f.Unique {
			for _, d := range decls {
				idxName := fmt.Sprintf("idx_%s_%s", r.Table, d.name)
				indexStmts = append(indexStmts, fmt.Sprintf(
					"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
					e.Dialect.EscapeIdentifier(idxName), e.Dialect.EscapeIdentifier(r.Table), e.Dialect.EscapeIdentifier(d.name),
				))
			}
		}
	}

	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", e.Dialect.EscapeIdentifier(r.Table), strings.Join(columnDecls, ", "))
	if _, err := sess.Execute(ctx, query.Statement{SQL: createSQL}, session.CursorVoid); err != nil {
		return nil, fmt.Errorf("ddl: create table %s: %w", r.Table, err)
	}

	existing, err := e.existingColumns(ctx, sess, r.Table)
	if err != nil {
		return nil, err
	}
	// Sort for deterministic ALTER ordering; map iteration order is random.
	names := r.StoreNames()
	sort.Strings(names)
	for _, name := range names {
		if existing[name] {
			continue
		}
		alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", e.Dialect.EscapeIdentifier(r.Table), columnByName[name])
		if _, err := sess.Execute(ctx, query.Statement{SQL: alterSQL}, session.CursorVoid); err != nil {
			return nil, fmt.Errorf("ddl: add column %s.%s: %w", r.Table, name, err)
		}
	}

	for _, m := range r.Many2Many() {
		linkFKs, err := e.createLinkTable(ctx, sess, r.Table, m)
		if err != nil {
			return nil, err
		}
		fks = append(fks, linkFKs...)
	}

	for _, stmt := range indexStmts {
		if _, err := sess.Execute(ctx, query.Statement{SQL: stmt}, session.CursorVoid); err != nil {
			return nil, fmt.Errorf("ddl: create index on %s: %w", r.Table, err)
		}
	}

	return fks, nil
}

// ApplyForeignKeys adds every constraint in fks, deduplicated by name and
// applied in a deterministic order. Call this only after CreateTable has
// run for every model the constraints reference.
func (e *Engine) ApplyForeignKeys(ctx context.Context, sess session.Session, fks []ForeignKey) error {
	seen := make(map[string]bool, len(fks))
	sorted := make([]ForeignKey, len(fks))
	copy(sorted, fks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, fk := range sorted {
		if seen[fk.Name] {
			continue
		}
		seen[fk.Name] = true
		if _, err := sess.Execute(ctx, query.Statement{SQL: fk.SQL}, session.CursorVoid); err != nil {
			return fmt.Errorf("ddl: add constraint %s: %w", fk.Name, err)
		}
	}
	return nil
}

func (e *Engine) many2oneForeignKey(table string, f *field.Descriptor) ForeignKey {
	name := fmt.Sprintf("fk_%s_%s", table, f.Name)
	sql := fmt.Sprintf(
		"ALTER TABLE IF EXISTS %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id) ON DELETE %s",
		e.Dialect.EscapeIdentifier(table), e.Dialect.EscapeIdentifier(name),
		e.Dialect.EscapeIdentifier(f.RelationField), e.Dialect.EscapeIdentifier(f.RelationTarget),
		strings.ToUpper(string(f.OnDelete)),
	)
	return ForeignKey{Name: name, SQL: sql}
}

func (e *Engine) createLinkTable(ctx context.Context, sess session.Session, sourceTable string, m *field.Descriptor) ([]ForeignKey, error) {
	linkTable := m.LinkTable
	if linkTable == "" {
		linkTable = fmt.Sprintf("%s_%s_rel", sourceTable, m.RelationTarget)
	}

	col1 := fmt.Sprintf("%s INTEGER NOT NULL", e.Dialect.EscapeIdentifier(m.LinkSourceColumn))
	col2 := fmt.Sprintf("%s INTEGER NOT NULL", e.Dialect.EscapeIdentifier(m.LinkTargetColumn))
	createSQL := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, %s)", e.Dialect.EscapeIdentifier(linkTable), col1, col2)
	if _, err := sess.Execute(ctx, query.Statement{SQL: createSQL}, session.CursorVoid); err != nil {
		return nil, fmt.Errorf("ddl: create link table %s: %w", linkTable, err)
	}

	onDelete := m.OnDelete
	if onDelete == "" {
		onDelete = field.Cascade
	}

	fkName1 := fmt.Sprintf("fk_%s_%s", linkTable, m.LinkSourceColumn)
	fkName2 := fmt.Sprintf("fk_%s_%s", linkTable, m.LinkTargetColumn)
	fks := []ForeignKey{
		{Name: fkName1, SQL: fmt.Sprintf(
			"ALTER TABLE IF EXISTS %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id) ON DELETE %s",
			e.Dialect.EscapeIdentifier(linkTable), e.Dialect.EscapeIdentifier(fkName1),
			e.Dialect.EscapeIdentifier(m.LinkSourceColumn), e.Dialect.EscapeIdentifier(sourceTable),
			strings.ToUpper(string(onDelete)),
		)},
		{Name: fkName2, SQL: fmt.Sprintf(
			"ALTER TABLE IF EXISTS %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id) ON DELETE %s",
			e.Dialect.EscapeIdentifier(linkTable), e.Dialect.EscapeIdentifier(fkName2),
			e.Dialect.EscapeIdentifier(m.LinkTargetColumn), e.Dialect.EscapeIdentifier(m.RelationTarget),
			strings.ToUpper(string(onDelete)),
		)},
	}

	idxName := fmt.Sprintf("idx_%s_%s_%s", linkTable, m.LinkSourceColumn, m.LinkTargetColumn)
	idxSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
		e.Dialect.EscapeIdentifier(idxName), e.Dialect.EscapeIdentifier(linkTable),
		e.Dialect.EscapeIdentifier(m.LinkSourceColumn), e.Dialect.EscapeIdentifier(m.LinkTargetColumn))
	if _, err := sess.Execute(ctx, query.Statement{SQL: idxSQL}, session.CursorVoid); err != nil {
		return nil, fmt.Errorf("ddl: create index on %s: %w", linkTable, err)
	}

	return fks, nil
}

// polymorphicTypeColumnLength bounds a PolymorphicMany2one's discriminator
// column: it only ever holds a field.Registry.Table value.
const polymorphicTypeColumnLength = 128

// namedColumn pairs a rendered column declaration with the physical column
// name it declares, so callers that need the bare name (ALTER TABLE ADD
// COLUMN lookups, index naming) don't have to re-parse the declaration.
type namedColumn struct {
	name string
	sql  string
}

// columnDeclarations renders the one (or, for PolymorphicMany2one, two)
// physical columns f is stored under, per field.StorageColumns.
func (e *Engine) columnDeclarations(f *field.Descriptor) ([]namedColumn, error) {
	if f.Kind == field.KindPolymorphicMany2one {
		typeDecl, err := e.namedColumnDeclaration(f, f.PolymorphicTypeCol, fmt.Sprintf("VARCHAR(%d)", polymorphicTypeColumnLength))
		if err != nil {
			return nil, err
		}
		idDecl, err := e.namedColumnDeclaration(f, f.PolymorphicIDCol, field.SQLTypeFor(f, e.Dialect.Name()))
		if err != nil {
			return nil, err
		}
		return []namedColumn{typeDecl, idDecl}, nil
	}

	names := field.StorageColumns(f)
	decl, err := e.namedColumnDeclaration(f, names[0], field.SQLTypeFor(f, e.Dialect.Name()))
	if err != nil {
		return nil, err
	}
	return []namedColumn{decl}, nil
}

func (e *Engine) namedColumnDeclaration(f *field.Descriptor, name, sqlType string) (namedColumn, error) {
	parts := []string{e.Dialect.EscapeIdentifier(name), sqlType}
	// SERIAL/BIGSERIAL already implies NOT NULL and PRIMARY KEY implies
	// UNIQUE, but the extra keywords are harmless and keep this branch
	// uniform across every field kind.
	if f.Unique {
		parts = append(parts, "UNIQUE")
	}
	if !f.Null {
		parts = append(parts, "NOT NULL")
	}
	if f.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if f.Default != nil {
		lit, err := formatDefaultValue(f.Default)
		if err != nil {
			return namedColumn{}, fmt.Errorf("ddl: field %s: %w", f.Name, err)
		}
		parts = append(parts, "DEFAULT "+lit)
	}
	return namedColumn{name: name, sql: strings.Join(parts, " ")}, nil
}

func (e *Engine) existingColumns(ctx context.Context, sess session.Session, table string) (map[string]bool, error) {
	stmt := query.Statement{
		SQL:  "SELECT column_name FROM information_schema.columns WHERE table_name = " + e.Dialect.MakePlaceholder(1),
		Args: []any{table},
	}
	result, err := sess.Execute(ctx, stmt, session.CursorFetch)
	if err != nil {
		return nil, fmt.Errorf("ddl: inspect columns of %s: %w", table, err)
	}
	existing := make(map[string]bool)
	for _, row := range result.([]map[string]any) {
		if name, ok := row["column_name"].(string); ok {
			existing[name] = true
		}
	}
	return existing, nil
}

// formatDefaultValue renders a Go default value as a SQL literal suitable
// for inline use in a DDL statement. Prepared-statement placeholders
// aren't available in CREATE TABLE / ALTER TABLE on any target dialect, so
// this substitutes by hand — rejecting anything that isn't a closed set of
// safe scalar shapes instead of attempting to sanitize arbitrary input.
func formatDefaultValue(v any) (string, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("invalid float for DEFAULT value")
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case string:
		if strings.Contains(val, ";") || strings.Contains(val, "--") {
			return "", fmt.Errorf("potentially unsafe characters in default string")
		}
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported type %T for SQL DEFAULT", v)
	}
}
