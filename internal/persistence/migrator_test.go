package persistence

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

var ensureTable = regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS public.schema_migrations")

func TestMigratorUpAppliesPending(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"000001_first.up.sql":    "CREATE TABLE first (id INT)",
		"000001_first.down.sql":  "DROP TABLE first",
		"000002_second.up.sql":   "CREATE TABLE second (id INT)",
		"000002_second.down.sql": "DROP TABLE second",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(ensureTable).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM public.schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("000001"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE second")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO public.schema_migrations")).
		WithArgs("000002", "000002_second.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(db, dir, zerolog.Nop()).Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorUpRollsBackFailedFile(t *testing.T) {
	dir := writeMigrations(t, map[string]string{"000001_bad.up.sql": "CREATE TABLE"})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(ensureTable).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM public.schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewMigrator(db, dir, zerolog.Nop()).Up(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorDown(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"000001_first.up.sql":   "CREATE TABLE first (id INT)",
		"000001_first.down.sql": "DROP TABLE first",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(ensureTable).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, filename FROM public.schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "filename"}).AddRow("000001", "000001_first.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE first")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM public.schema_migrations")).
		WithArgs("000001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(db, dir, zerolog.Nop()).Down(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorStatusListsRepoMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(ensureTable).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM public.schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow("000001", at))

	status, err := NewMigrator(db, filepath.Join("..", "..", "migrations"), zerolog.Nop()).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)

	assert.Equal(t, "000001_event_log.up.sql", status[0].Filename)
	assert.True(t, status[0].Applied)
	assert.Equal(t, at, status[0].AppliedAt)
	assert.Equal(t, "000002_projections.up.sql", status[1].Filename)
	assert.False(t, status[1].Applied)
}
