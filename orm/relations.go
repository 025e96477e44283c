package orm

import (
	"context"

	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

// HydrateRelations loads every relation field in rels for rows in one
// batched query per field — never one query per row — and writes the
// results back onto each row under its field name: Many2one-family
// fields get a single related Row or nil, to-many fields get a []Row.
// targets supplies the query.Builder for each relation field's related
// table, keyed by field name; fields with no entry in targets are
// skipped.
//
// Whether the batch queries run sequentially or concurrently is entirely
// up to sess.ExecuteBatch: a session.TransactionalSession runs them one
// at a time (a single pinned connection can't multiplex), a
// session.NoTransactionSession fans them out concurrently via errgroup.
func HydrateRelations(ctx context.Context, sess session.Session, b *query.Builder, rels []*field.Descriptor, rows []Row, targets map[string]*query.Builder) error {
	if len(rows) == 0 || len(rels) == 0 {
		return nil
	}

	pk := b.Fields.PrimaryKey().Name
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[pk]
	}

	many2oneIDs := make(map[string][]any)
	for _, rel := range rels {
		if !isMany2oneFamily(rel.Kind) {
			continue
		}
		seen := make(map[any]bool)
		for _, row := range rows {
			v := row[rel.RelationKeyColumn()]
			if v == nil || seen[v] {
				continue
			}
			seen[v] = true
			many2oneIDs[rel.Name] = append(many2oneIDs[rel.Name], v)
		}
	}

	requests := query.BuildSearchRelation(b, rels, ids, targets, many2oneIDs)
	if len(requests) == 0 {
		return nil
	}

	stmts := make([]query.Statement, len(requests))
	for i, r := range requests {
		stmts[i] = r.Stmt
	}
	results, err := sess.ExecuteBatch(ctx, stmts)
	if err != nil {
		return err
	}

	// Every relation field is set to its zero value before distributing,
	// so a record with no matching related rows still gets nil / [],
	// rather than silently omitting the key.
	for _, rel := range rels {
		zero := relationZeroValue(rel)
		for _, row := range rows {
			row[rel.Name] = zero
		}
	}

	for i, req := range requests {
		target := targets[req.FieldName]
		for _, res := range results[i] {
			if target != nil {
				decodeJSONFields(target.Fields, res)
			}
		}
		distribute(req, results[i], rows, pk, target)
	}
	return nil
}

func isMany2oneFamily(k field.Kind) bool {
	switch k {
	case field.KindMany2one, field.KindOne2one, field.KindPolymorphicMany2one:
		return true
	default:
		return false
	}
}

func relationZeroValue(rel *field.Descriptor) any {
	if rel.IsToMany() {
		return []Row{}
	}
	return nil
}

func distribute(req query.RelationRequest, result []Row, rows []Row, pk string, target *query.Builder) {
	switch req.Field.Kind {
	case field.KindMany2one, field.KindOne2one, field.KindPolymorphicMany2one:
		if target == nil {
			return
		}
		targetPK := target.Fields.PrimaryKey().Name
		byID := GroupByKey(result, func(r Row) any { return r[targetPK] })
		for _, row := range rows {
			fk := row[req.Field.RelationKeyColumn()]
			if fk == nil {
				continue
			}
			if matches := byID[fk]; len(matches) > 0 {
				row[req.FieldName] = matches[0]
			}
		}

	case field.KindOne2many, field.KindPolymorphicOne2many:
		byParent := GroupByKey(result, func(r Row) any { return r[req.Field.RelationKeyColumn()] })
		ids := rowKeys(rows, pk)
		for i, children := range OrderGroupsByKeys(byParent, ids) {
			if children != nil {
				rows[i][req.FieldName] = children
			}
		}

	case field.KindMany2many:
		byParent := GroupByKey(result, func(r Row) any { return r["m2m_id"] })
		for _, res := range result {
			delete(res, "m2m_id")
		}
		ids := rowKeys(rows, pk)
		for i, children := range OrderGroupsByKeys(byParent, ids) {
			if children != nil {
				rows[i][req.FieldName] = children
			}
		}
	}
}

func rowKeys(rows []Row, pk string) []any {
	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = row[pk]
	}
	return keys
}
