package settingscache

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/session"
)

// TestGetFallsBackToStaleCacheOnDatabaseError exercises the one place the
// runtime is allowed to serve stale data: a cached entry whose TTL has
// elapsed, served back when the refreshing database read fails.
func TestGetFallsBackToStaleCacheOnDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	model := orm.NewModel(dialect.PostgresDialect, Fields(), sess)

	cache := New()
	fakeNow := time.Now()
	cache.now = func() time.Time { return fakeNow }
	s := NewSettings(model, cache)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .* FROM "system_settings" WHERE "key" = \$1`).
		WithArgs("mail.smtp_host").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "value", "description", "module", "is_system", "cache_ttl"}).
			AddRow(1, "mail.smtp_host", `"smtp.gmail.com"`, nil, "mail", false, 60))

	first, err := s.Get(ctx, "mail.smtp_host")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", first)

	fakeNow = fakeNow.Add(2 * time.Minute) // past the 60s TTL

	mock.ExpectQuery(`SELECT .* FROM "system_settings" WHERE "key" = \$1`).
		WithArgs("mail.smtp_host").
		WillReturnError(assert.AnError)

	second, err := s.Get(ctx, "mail.smtp_host")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", second)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetPropagatesErrorWhenNoStaleValueExists confirms the fallback is
// scoped to an actual prior cache entry, not a blanket error swallow.
func TestGetPropagatesErrorWhenNoStaleValueExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)
	model := orm.NewModel(dialect.PostgresDialect, Fields(), sess)
	s := NewSettings(model, New())

	mock.ExpectQuery(`SELECT .* FROM "system_settings" WHERE "key" = \$1`).
		WithArgs("mail.smtp_host").
		WillReturnError(assert.AnError)

	_, err = s.Get(context.Background(), "mail.smtp_host")
	assert.ErrorIs(t, err, assert.AnError)
}
