package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_AppliesPendingInOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{
		"002_indexes.sql": {Data: []byte("CREATE INDEX idx ON rooms (type)")},
		"001_init.sql":    {Data: []byte("CREATE TABLE rooms (id UUID)")},
		"README.md":       {Data: []byte("ignored")},
	}

	checkSQL := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)")
	recordSQL := regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery(checkSQL).WithArgs("001_init").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(checkSQL).WithArgs("002_indexes").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX idx ON rooms (type)")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(recordSQL).WithArgs("002_indexes").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	applied, err := Migrate(context.Background(), mock, fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_indexes"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{
		"001_init.sql": {Data: []byte("CREATE TABLE broken (")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_init").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE broken (")).
		WillReturnError(errors.New("syntax error"))

	applied, err := Migrate(context.Background(), mock, fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_init")
	assert.Empty(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := DefaultPostgresConfig()
	cfg.Password = "secret"

	want := "host=localhost port=5432 user=postgres password=secret dbname=hotel_db sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
