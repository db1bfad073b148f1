package storage

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-comparator/models"
	"property-comparator/utils"
)

func newMockPostgresStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS comparator_properties .*id BIGSERIAL PRIMARY KEY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_comparator_properties_city").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(context.Background(), db, DialectPostgres, utils.NewNopLogger())
	require.NoError(t, err)
	return s, mock
}

func TestPostgresFetchUsesNumberedPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM comparator_properties WHERE lower(trim(city)) IN ($1, $2)")).
		WithArgs("gurgaon", "gurugram").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	columns := append(append([]string{"external_id"}, textColumns...), numericColumns...)
	row := make([]driver.Value, len(columns))
	row[0] = "g1"
	row[1] = "Gurugram"
	row[len(textColumns)+1] = 1450.0
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id LIMIT $3 OFFSET $4")).
		WithArgs("gurgaon", "gurugram", 2, 2).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row...))

	page, err := s.FetchProperties(context.Background(), Query{City: "Gurgaon", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Properties, 1)

	rec := page.Properties[0]
	assert.Equal(t, models.RawPropertyRecord{"_id": "g1", "city": "Gurugram", "area": 1450.0}, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO comparator_properties .* ON CONFLICT \\(external_id\\) DO UPDATE SET").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.Upsert(context.Background(), []models.RawPropertyRecord{{"_id": "a", "city": "Pune"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertCommits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("($1,$2,")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.Upsert(context.Background(), []models.RawPropertyRecord{
		{"_id": "a", "city": "Pune"},
		{"_id": "b", "city": "Pune", "builder_grade": "7.5"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
