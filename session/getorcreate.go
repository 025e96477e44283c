package session

import (
	"context"
	"fmt"

	"github.com/dotorm/dotorm/dialect"
)

// GetOrCreateRow performs a race-free get-or-create against table: it
// first selects the matching row with FOR UPDATE SKIP LOCKED inside s's
// transaction, and if none exists, inserts defaults and returns the new
// row. Callers must run this inside a TransactionalSession — SKIP LOCKED
// only prevents a race between concurrent transactions, not concurrent
// autocommit statements.
//
// This mirrors the original chat module's race-free "find or create the
// active conversation thread" query; it is exposed generically here since
// the chat state machine itself is out of scope.
func GetOrCreateRow(ctx context.Context, s *TransactionalSession, d dialect.Dialect, table string, whereCol string, whereVal any, defaults map[string]any) (map[string]any, error) {
	if !s.InTransaction() {
		return nil, fmt.Errorf("session: GetOrCreateRow requires a transaction")
	}

	selectStmt := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s = %s LIMIT 1 FOR UPDATE SKIP LOCKED",
		d.EscapeIdentifier(table), d.EscapeIdentifier(whereCol), d.MakePlaceholder(1),
	)
	rows, err := s.tx.Query(ctx, selectStmt, []any{whereVal})
	if err != nil {
		return nil, err
	}
	found, err := scanRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found[0], nil
	}

	payload := make(map[string]any, len(defaults)+1)
	for k, v := range defaults {
		payload[k] = v
	}
	payload[whereCol] = whereVal

	names := sortedKeys(payload)
	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		cols[i] = d.EscapeIdentifier(name)
		placeholders[i] = d.MakePlaceholder(i + 1)
		args[i] = payload[name]
	}
	insertStmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		d.EscapeIdentifier(table), joinStrings(cols, ", "), joinStrings(placeholders, ", "),
	)
	insertedRows, err := s.tx.Query(ctx, insertStmt, args)
	if err != nil {
		return nil, err
	}
	defer insertedRows.Close()
	inserted, err := scanRows(insertedRows)
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 {
		return nil, fmt.Errorf("session: GetOrCreateRow insert returned no row")
	}
	return inserted[0], nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion order doesn't matter for correctness, only determinism for
	// tests, so a simple selection sort keeps this file dependency-free.
	for i := 0; i < len(keys); i++ {
		min := i
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[min] {
				min = j
			}
		}
		keys[i], keys[min] = keys[min], keys[i]
	}
	return keys
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
