package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-comparator/models"
	"property-comparator/utils"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRecords() []models.RawPropertyRecord {
	return []models.RawPropertyRecord{
		{"_id": "g1", "city": "Gurugram", "location": "Sector 45", "builder_grade": 8.5, "price_value": "1,25,00,000"},
		{"_id": "p1", "city": "Pune", "location": "Baner", "builder_grade": 7},
		{"_id": "g2", "city": " gurgaon ", "location": "Golf Course Road", "investment_potential": "n/a"},
		{"_id": "g3", "city": "GURUGRAM", "location": "Sohna Road", "future_growth_prediction": 82},
	}
}

func TestSQLStoreUpsertAndFetchByCity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Upsert(ctx, seedRecords())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	page, err := s.FetchProperties(ctx, Query{City: "Gurgaon", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Properties, 2)
	assert.Equal(t, "g1", page.Properties[0]["_id"])
	assert.Equal(t, "g2", page.Properties[1]["_id"])

	page, err = s.FetchProperties(ctx, Query{City: "gurugram", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, "g3", page.Properties[0]["_id"])
}

func TestSQLStoreOmitsNullColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upsert(ctx, seedRecords())
	require.NoError(t, err)

	page, err := s.FetchProperties(ctx, Query{City: "Gurugram"})
	require.NoError(t, err)
	require.Len(t, page.Properties, 3)

	first := page.Properties[0]
	assert.Equal(t, 8.5, first["builder_grade"])
	assert.Equal(t, 12500000.0, first["price_value"])
	assert.NotContains(t, first, "investment_potential")

	// Unparseable numbers are stored as NULL and read back as absent.
	assert.NotContains(t, page.Properties[1], "investment_potential")
}

func TestSQLStoreUpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upsert(ctx, seedRecords())
	require.NoError(t, err)

	n, err := s.Upsert(ctx, []models.RawPropertyRecord{
		{"_id": "p1", "city": "Pune", "location": "Baner", "builder_grade": 9.5},
		{"_id": "p1", "city": "Pune", "location": "Ignored Duplicate", "builder_grade": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err := s.FetchProperties(ctx, Query{City: "Pune"})
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, "Baner", page.Properties[0]["location"])
	assert.Equal(t, 9.5, page.Properties[0]["builder_grade"])
}

func TestSQLStoreEmptyCityMatchesAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upsert(ctx, seedRecords())
	require.NoError(t, err)

	page, err := s.FetchProperties(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
}

func TestSQLStoreUnknownCityAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Upsert(ctx, seedRecords())
	require.NoError(t, err)

	page, err := s.FetchProperties(ctx, Query{City: "Atlantis"})
	require.NoError(t, err)
	assert.Empty(t, page.Properties)
	assert.Equal(t, 0, page.TotalPages)

	require.NoError(t, s.Clear(ctx))
	page, err = s.FetchProperties(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
}

func TestSQLStoreRecordsWithoutIdGetStableIdentifier(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rec := models.RawPropertyRecord{"city": "Pune", "location": "Wakad"}

	_, err := s.Upsert(ctx, []models.RawPropertyRecord{rec})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, []models.RawPropertyRecord{rec})
	require.NoError(t, err)

	page, err := s.FetchProperties(ctx, Query{City: "Pune"})
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, rec.Identifier(), page.Properties[0]["_id"])
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewSQLStore(context.Background(), nil, Dialect("oracle"), utils.NewNopLogger())
	assert.Error(t, err)
}

func TestSQLStoreKeepsScrapedListingFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Upsert(ctx, []models.RawPropertyRecord{{
		"_id":         "https://example.com/listing/1",
		"listing_url": "https://example.com/listing/1",
		"title":       "3 BHK Flat in Baner",
		"scraped_at":  "2024-05-01T10:00:00Z",
		"city":        "Pune",
		"location":    "Baner",
	}})
	require.NoError(t, err)

	page, err := s.FetchProperties(ctx, Query{City: "Pune"})
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)

	rec := page.Properties[0]
	assert.Equal(t, "3 BHK Flat in Baner", rec["title"])
	assert.Equal(t, "https://example.com/listing/1", rec["listing_url"])
	assert.Equal(t, "2024-05-01T10:00:00Z", rec["scraped_at"])
}
