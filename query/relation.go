package query

import (
	"fmt"
	"strings"

	"github.com/dotorm/dotorm"
	"github.com/dotorm/dotorm/dialect"
	"github.com/dotorm/dotorm/field"
)

// BuildMany2Many renders the join query for one parent row's Many2many
// relation, ordered and paginated like a regular search.
func (b *Builder) BuildMany2Many(id any, target *Builder, rel *field.Descriptor, fields []string, opts SearchOptions) Statement {
	if len(fields) == 0 {
		fields = target.Fields.StoreNames()
	}
	prefixed := make([]string, len(fields))
	for i, f := range fields {
		prefixed[i] = "p." + target.escape(f)
	}

	order := strings.ToUpper(opts.Order)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	sortField := opts.Sort
	if sortField == "" {
		sortField = target.Fields.PrimaryKey().Name
	}

	stmt := fmt.Sprintf(
		"SELECT %s FROM %s p JOIN %s pt ON p.%s = pt.%s JOIN %s t ON pt.%s = t.%s WHERE t.%s = %s ORDER BY %s %s",
		strings.Join(prefixed, ", "),
		target.qualifiedTable(),
		b.escape(rel.LinkTable),
		target.escape(target.Fields.PrimaryKey().Name),
		b.escape(rel.LinkTargetColumn),
		b.qualifiedTable(),
		b.escape(rel.LinkSourceColumn),
		b.escape(b.Fields.PrimaryKey().Name),
		b.escape(b.Fields.PrimaryKey().Name),
		b.Dialect.MakePlaceholder(1),
		target.escape(sortField), order,
	)
	args := []any{id}

	limit := opts.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if opts.Start != nil && opts.End != nil {
		stmt += fmt.Sprintf(" LIMIT %s OFFSET %s", b.Dialect.MakePlaceholder(2), b.Dialect.MakePlaceholder(3))
		args = append(args, *opts.End-*opts.Start, *opts.Start)
	} else {
		stmt += fmt.Sprintf(" LIMIT %s", b.Dialect.MakePlaceholder(2))
		args = append(args, limit)
	}
	return Statement{SQL: stmt, Args: args}
}

// BuildMany2ManyBatch renders one join query covering every id in ids,
// projecting the link table's source column as m2m_id so the caller can
// redistribute rows back to their owning parent without N+1 round-trips.
func (b *Builder) BuildMany2ManyBatch(ids []any, target *Builder, rel *field.Descriptor, fields []string, limit int) Statement {
	if len(fields) == 0 {
		fields = target.Fields.StoreNames()
	}
	prefixed := make([]string, len(fields)+1)
	for i, f := range fields {
		prefixed[i] = "p." + target.escape(f)
	}
	prefixed[len(fields)] = fmt.Sprintf("pt.%s AS m2m_id", b.escape(rel.LinkSourceColumn))

	stmt := fmt.Sprintf(
		"SELECT %s FROM %s p JOIN %s pt ON p.%s = pt.%s JOIN %s t ON pt.%s = t.%s WHERE t.%s IN (%s) LIMIT %s",
		strings.Join(prefixed, ", "),
		target.qualifiedTable(),
		b.escape(rel.LinkTable),
		target.escape(target.Fields.PrimaryKey().Name),
		b.escape(rel.LinkTargetColumn),
		b.qualifiedTable(),
		b.escape(rel.LinkSourceColumn),
		b.escape(b.Fields.PrimaryKey().Name),
		b.escape(b.Fields.PrimaryKey().Name),
		b.Dialect.MakePlaceholders(len(ids), 1),
		b.Dialect.MakePlaceholder(len(ids)+1),
	)
	args := append(append([]any{}, ids...), limit)
	return Statement{SQL: stmt, Args: args}
}

// BuildMany2ManyLink renders the INSERT used to create link rows between
// one parent and a set of target ids.
func (b *Builder) BuildMany2ManyLink(rel *field.Descriptor, parentID any, targetIDs []any) Statement {
	groups := make([]string, len(targetIDs))
	args := make([]any, 0, len(targetIDs)*2)
	index := 1
	for i, targetID := range targetIDs {
		groups[i] = fmt.Sprintf("(%s, %s)", b.Dialect.MakePlaceholder(index), b.Dialect.MakePlaceholder(index+1))
		args = append(args, parentID, targetID)
		index += 2
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES %s",
		b.escape(rel.LinkTable), b.escape(rel.LinkSourceColumn), b.escape(rel.LinkTargetColumn),
		strings.Join(groups, ", "),
	)
	return Statement{SQL: stmt, Args: args}
}

// BuildMany2ManyUnlink renders the DELETE used to remove link rows between
// one parent and a set of target ids.
func (b *Builder) BuildMany2ManyUnlink(rel *field.Descriptor, parentID any, targetIDs []any) Statement {
	args := make([]any, 0, len(targetIDs)+1)
	args = append(args, parentID)
	args = append(args, targetIDs...)
	stmt := fmt.Sprintf(
		"DELETE FROM %s WHERE %s = %s AND %s IN (%s)",
		b.escape(rel.LinkTable), b.escape(rel.LinkSourceColumn), b.Dialect.MakePlaceholder(1),
		b.escape(rel.LinkTargetColumn), b.Dialect.MakePlaceholders(len(targetIDs), 2),
	)
	return Statement{SQL: stmt, Args: args}
}

// BuildRecursiveClosure renders a WITH RECURSIVE query computing the
// transitive closure of a self-referencing Many2many relation starting
// from rootID: rootID itself plus every row reachable by following rel's
// link table outward any number of hops. Used for role hierarchies, where
// a role's effective permissions are the union of its own and every role
// it is based on, however many levels deep.
//
// Only Postgres supports the WITH RECURSIVE form this emits; other
// dialects return dotorm.ErrUnsupportedDialect rather than a query that
// would fail at execution time.
func (b *Builder) BuildRecursiveClosure(rel *field.Descriptor, rootID any) (Statement, error) {
	if b.Dialect.Name() != dialect.Postgres {
		return Statement{}, dotorm.ErrUnsupportedDialect
	}
	pk := b.Fields.PrimaryKey().Name
	stmt := fmt.Sprintf(
		`WITH RECURSIVE closure(%s) AS (
	SELECT %s
	UNION
	SELECT l.%s FROM %s l JOIN closure c ON l.%s = c.%s
)
SELECT %s FROM closure`,
		b.escape(pk),
		b.Dialect.MakePlaceholder(1),
		b.escape(rel.LinkTargetColumn), b.escape(rel.LinkTable),
		b.escape(rel.LinkSourceColumn), b.escape(pk),
		b.escape(pk),
	)
	return Statement{SQL: stmt, Args: []any{rootID}}, nil
}

// RelationRequest is one batched relation query queued by BuildSearchRelation,
// ready to execute and redistribute across the owning records.
type RelationRequest struct {
	FieldName string
	Field     *field.Descriptor
	Stmt      Statement
}

// BuildSearchRelation builds one batched query per relation field in rels,
// covering every id in ids, to avoid N+1 round-trips when hydrating a page
// of search results. One2many, PolymorphicOne2many, and Many2many requests
// carry every id's results in one query (discriminated by foreign key /
// discriminator column / m2m_id); Many2one-family requests are deduplicated
// across ids before querying.
func BuildSearchRelation(b *Builder, rels []*field.Descriptor, ids []any, targets map[string]*Builder, many2oneIDs map[string][]any) []RelationRequest {
	var out []RelationRequest
	if len(ids) == 0 {
		return out
	}
	for _, rel := range rels {
		target := targets[rel.Name]
		if target == nil {
			continue
		}
		switch rel.Kind {
		case field.KindOne2many:
			stmt, err := target.BuildSearch(SearchOptions{
				Fields: append(target.Fields.StoreNames(), rel.RelationField),
				Filter: []any{[]any{rel.RelationField, "in", ids}},
				Limit:  -1,
			})
			if err != nil {
				continue
			}
			out = append(out, RelationRequest{FieldName: rel.Name, Field: rel, Stmt: stmt})

		case field.KindPolymorphicOne2many:
			// Rows across target's table can belong to any model's relation
			// of this shape, so the discriminator column must also match
			// this relation's owning table, not just the id.
			stmt, err := target.BuildSearch(SearchOptions{
				Fields: append(target.Fields.StoreNames(), rel.PolymorphicIDCol),
				Filter: []any{
					[]any{rel.PolymorphicIDCol, "in", ids},
					[]any{rel.PolymorphicTypeCol, "=", b.Table},
				},
				Limit: -1,
			})
			if err != nil {
				continue
			}
			out = append(out, RelationRequest{FieldName: rel.Name, Field: rel, Stmt: stmt})

		case field.KindMany2many:
			stmt := b.BuildMany2ManyBatch(ids, target, rel, nil, 10000)
			out = append(out, RelationRequest{FieldName: rel.Name, Field: rel, Stmt: stmt})

		case field.KindMany2one, field.KindOne2one, field.KindPolymorphicMany2one:
			m2oIDs := many2oneIDs[rel.Name]
			if len(m2oIDs) == 0 {
				continue
			}
			stmt, err := target.BuildSearch(SearchOptions{
				Filter: []any{[]any{target.Fields.PrimaryKey().Name, "in", m2oIDs}},
				Limit:  -1,
			})
			if err != nil {
				continue
			}
			out = append(out, RelationRequest{FieldName: rel.Name, Field: rel, Stmt: stmt})
		}
	}
	return out
}
