package orm_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotorm/dotorm/dialect"
	dsql "github.com/dotorm/dotorm/dialect/sql"
	"github.com/dotorm/dotorm/field"
	"github.com/dotorm/dotorm/orm"
	"github.com/dotorm/dotorm/query"
	"github.com/dotorm/dotorm/session"
)

func projectRegistry() *field.Registry {
	return field.NewRegistry("project",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
	)
}

func tagRegistry() *field.Registry {
	return field.NewRegistry("tag",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("name", 255, field.WithRequired(true)),
	)
}

func taskWithRelationsRegistry() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.Many2one("project", "project", "project_id"),
		field.Many2many("tags", "tag", "task_tag_rel", "task_id", "tag_id"),
	)
}

func TestHydrateRelationsDistributesMany2oneByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskFields := taskWithRelationsRegistry()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	projectBuilder := query.NewBuilder("project", dialect.PostgresDialect, projectRegistry())

	mock.ExpectQuery(`SELECT .* FROM "project" WHERE "id" IN \(\$1\)`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(10, "Atlas"))

	rel, _ := taskFields.Field("project")
	rows := []orm.Row{{"id": 1, "title": "ship it", "project_id": 10}}
	targets := map[string]*query.Builder{"project": projectBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	project, ok := rows[0]["project"].(orm.Row)
	require.True(t, ok)
	assert.Equal(t, "Atlas", project["name"])
}

func TestHydrateRelationsDistributesMany2manyByDiscriminator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskFields := taskWithRelationsRegistry()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	tagBuilder := query.NewBuilder("tag", dialect.PostgresDialect, tagRegistry())

	mock.ExpectQuery(`SELECT .* AS m2m_id FROM "tag" p JOIN "task_tag_rel" pt .* WHERE t."id" IN \(\$1\) LIMIT \$2`).
		WithArgs(1, 10000).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "m2m_id"}).
			AddRow(100, "urgent", 1).
			AddRow(101, "backend", 1))

	rel, _ := taskFields.Field("tags")
	rows := []orm.Row{{"id": 1, "title": "ship it"}}
	targets := map[string]*query.Builder{"tags": tagBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	tags, ok := rows[0]["tags"].([]orm.Row)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, "urgent", tags[0]["name"])
	assert.NotContains(t, tags[0], "m2m_id")
}

func TestHydrateRelationsSetsZeroValueWhenNoRelatedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskFields := taskWithRelationsRegistry()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	tagBuilder := query.NewBuilder("tag", dialect.PostgresDialect, tagRegistry())

	mock.ExpectQuery(`SELECT .* AS m2m_id FROM "tag" p JOIN "task_tag_rel" pt .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "m2m_id"}))

	rel, _ := taskFields.Field("tags")
	rows := []orm.Row{{"id": 5, "title": "no tags"}}
	targets := map[string]*query.Builder{"tags": tagBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)

	tags, ok := rows[0]["tags"].([]orm.Row)
	require.True(t, ok)
	assert.Empty(t, tags)
}

func taskWithCommentsRegistryForHydration() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.One2many("comments", "comment", "task_id"),
	)
}

func commentRegistryForHydration() *field.Registry {
	return field.NewRegistry("comment",
		field.Integer("id", field.WithPrimaryKey()),
		field.Text("body"),
		field.Many2one("task", "task", "task_id"),
	)
}

func TestHydrateRelationsDistributesOne2manyByForeignKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskFields := taskWithCommentsRegistryForHydration()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	commentBuilder := query.NewBuilder("comment", dialect.PostgresDialect, commentRegistryForHydration())

	mock.ExpectQuery(`SELECT .* FROM "comment" WHERE "task_id" IN \(\$1\)`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "task_id"}).AddRow(9, "nice work", 1))

	rel, _ := taskFields.Field("comments")
	rows := []orm.Row{{"id": 1, "title": "ship it"}}
	targets := map[string]*query.Builder{"comments": commentBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	comments, ok := rows[0]["comments"].([]orm.Row)
	require.True(t, ok)
	require.Len(t, comments, 1)
	assert.Equal(t, "nice work", comments[0]["body"])
}

func taskWithAttachmentsRegistry() *field.Registry {
	return field.NewRegistry("task",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("title", 255, field.WithRequired(true)),
		field.PolymorphicOne2many("attachments", "related_model", "related_id", "attachment"),
	)
}

func attachmentRegistryForHydration() *field.Registry {
	return field.NewRegistry("attachment",
		field.Integer("id", field.WithPrimaryKey()),
		field.Char("filename", 255, field.WithRequired(true)),
		field.PolymorphicMany2one("related", "related_model", "related_id"),
	)
}

func TestHydrateRelationsDistributesPolymorphicOne2manyByDiscriminator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	taskFields := taskWithAttachmentsRegistry()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	attachmentBuilder := query.NewBuilder("attachment", dialect.PostgresDialect, attachmentRegistryForHydration())

	// The discriminator column must match this relation's owning table
	// ("task"), not just the id, since attachment rows for other tables
	// share the same related_id values.
	mock.ExpectQuery(`SELECT .* FROM "attachment" WHERE "related_id" IN \(\$1\) AND "related_model" = \$2`).
		WithArgs(1, "task").
		WillReturnRows(sqlmock.NewRows([]string{"id", "filename", "related_model", "related_id"}).
			AddRow(5, "report.pdf", "task", 1))

	rel, _ := taskFields.Field("attachments")
	rows := []orm.Row{{"id": 1, "title": "ship it"}}
	targets := map[string]*query.Builder{"attachments": attachmentBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	attachments, ok := rows[0]["attachments"].([]orm.Row)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Equal(t, "report.pdf", attachments[0]["filename"])
}

func TestHydrateRelationsDistributesPolymorphicMany2oneByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	driver := dsql.OpenDB(db, dialect.PostgresDialect)
	sess := session.NewNoTransactionSession(driver, nil)

	attachmentFields := attachmentRegistryForHydration()
	b := query.NewBuilder("attachment", dialect.PostgresDialect, attachmentFields)
	taskBuilder := query.NewBuilder("task", dialect.PostgresDialect, taskWithAttachmentsRegistry())

	mock.ExpectQuery(`SELECT .* FROM "task" WHERE "id" IN \(\$1\)`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(1, "ship it"))

	rel, _ := attachmentFields.Field("related")
	rows := []orm.Row{{"id": 5, "filename": "report.pdf", "related_model": "task", "related_id": 1}}
	targets := map[string]*query.Builder{"related": taskBuilder}

	err = orm.HydrateRelations(context.Background(), sess, b, []*field.Descriptor{rel}, rows, targets)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	task, ok := rows[0]["related"].(orm.Row)
	require.True(t, ok)
	assert.Equal(t, "ship it", task["title"])
}

func TestHydrateRelationsNoOpWithoutRowsOrRelations(t *testing.T) {
	taskFields := taskWithRelationsRegistry()
	b := query.NewBuilder("task", dialect.PostgresDialect, taskFields)
	err := orm.HydrateRelations(context.Background(), nil, b, nil, []orm.Row{{"id": 1}}, nil)
	require.NoError(t, err)
}
