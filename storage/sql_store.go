package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"property-comparator/models"
	"property-comparator/services"
	"property-comparator/utils"
)

// Dialect selects the SQL flavour a SQLStore speaks.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const (
	tableName       = "comparator_properties"
	upsertBatchSize = 50
)

// Columns stored as text. Names match the raw record fields.
var textColumns = []string{
	"city",
	"location",
	"developer_name",
	"furnishing_status",
	"construction_status",
	// Provenance of scraped listings.
	"title",
	"listing_url",
	"scraped_at",
}

// Columns stored as floating point numbers.
var numericColumns = []string{
	"area",
	"bedrooms",
	"bathroom",
	"balconies",
	"price_value",
	"rate_sqft",
	"property_age_years",
	"parking_count",
	"days_on_market",
	"amenities_count",
	"facing_score",
	"lifestyle_quality_index",
	"rental_yield",
	"future_growth_prediction",
	"investment_potential",
	"neighbourhood_avg_income",
	"affordability_index",
	"builder_grade",
	"green_cover",
	"security_score",
	"recreation_score",
	"convenience_score",
}

// SQLStore is a PropertyRepository backed by PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *utils.Logger
}

var (
	_ PropertyRepository = (*SQLStore)(nil)
	_ PropertyWriter     = (*SQLStore)(nil)
)

// OpenPostgres connects to PostgreSQL, waits for it to accept connections,
// runs schema migrations, and returns a ready-to-use SQLStore.
func OpenPostgres(ctx context.Context, dsn string, logger *utils.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}

	ping := &utils.RetryConfig{MaxAttempts: 6, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := ping.Do(ctx, "postgres ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewSQLStore(ctx, db, DialectPostgres, logger)
}

// OpenSQLite opens (or creates) a SQLite database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *utils.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %q", path)
	}
	// Every pooled connection to ":memory:" would see its own empty database.
	db.SetMaxOpenConns(1)

	return NewSQLStore(ctx, db, DialectSQLite, logger)
}

// NewSQLStore wraps an open database and migrates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, logger *utils.Logger) (*SQLStore, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, eris.Errorf("store: unsupported dialect %q", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, eris.Wrapf(err, "%s: migrate", dialect)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idType, realType, createdAt := "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ NOT NULL DEFAULT NOW()"
	if s.dialect == DialectSQLite {
		idType, realType, createdAt = "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"
	}

	cols := []string{
		"id " + idType,
		"external_id TEXT UNIQUE NOT NULL",
	}
	for _, c := range textColumns {
		cols = append(cols, c+" TEXT")
	}
	for _, c := range numericColumns {
		cols = append(cols, c+" "+realType)
	}
	cols = append(cols, "created_at "+createdAt)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", tableName, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_city ON %s(city)", tableName, tableName),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert inserts raw records, replacing stored rows with the same identifier.
// Records repeating an identifier already seen in this call are skipped. It
// returns the number of records written.
func (s *SQLStore) Upsert(ctx context.Context, records []models.RawPropertyRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	seen := utils.NewKeySet()
	unique := make([]models.RawPropertyRecord, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		id := r.Identifier()
		if !seen.Add(id) {
			continue
		}
		unique = append(unique, r)
		ids = append(ids, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: begin upsert", s.dialect)
	}
	defer func() { _ = tx.Rollback() }()

	for i := 0; i < len(unique); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(unique) {
			end = len(unique)
		}
		if err := s.upsertBatch(ctx, tx, unique[i:end], ids[i:end]); err != nil {
			return 0, eris.Wrapf(err, "%s: upsert batch at %d", s.dialect, i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "%s: commit upsert", s.dialect)
	}
	s.logger.Debug("[store] Upserted %d records (%d duplicates skipped)", len(unique), len(records)-len(unique))
	return len(unique), nil
}

func (s *SQLStore) upsertBatch(ctx context.Context, tx *sql.Tx, batch []models.RawPropertyRecord, ids []string) error {
	columns := append(append([]string{"external_id"}, textColumns...), numericColumns...)
	width := len(columns)

	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*width)

	for idx, r := range batch {
		holders := make([]string, width)
		for c := range holders {
			holders[c] = s.placeholder(idx*width + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(holders, ",")+")")

		valueArgs = append(valueArgs, ids[idx])
		for _, c := range textColumns {
			valueArgs = append(valueArgs, nullableText(r, c))
		}
		for _, c := range numericColumns {
			valueArgs = append(valueArgs, nullableNumber(r, c))
		}
	}

	updates := make([]string, 0, width-1)
	for _, c := range columns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES %s
		ON CONFLICT (external_id) DO UPDATE SET %s
	`, tableName, strings.Join(columns, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))

	_, err := tx.ExecContext(ctx, query, valueArgs...)
	return err
}

// FetchProperties returns one page of records for q.City, ordered by insertion.
// City matching is case-insensitive and treats Gurgaon and Gurugram as one
// city. An empty city matches everything. NULL columns are left out of the
// returned records.
func (s *SQLStore) FetchProperties(ctx context.Context, q Query) (*models.PropertyPage, error) {
	q = q.normalized()

	where, args := s.cityClause(q.City)

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", tableName, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, eris.Wrapf(err, "%s: count properties", s.dialect)
	}

	columns := append(append([]string{"external_id"}, textColumns...), numericColumns...)
	n := len(args)
	selectQuery := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT %s OFFSET %s",
		strings.Join(columns, ", "), tableName, where, s.placeholder(n+1), s.placeholder(n+2))
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: fetch properties", s.dialect)
	}
	defer rows.Close()

	page := &models.PropertyPage{
		Properties: make([]models.RawPropertyRecord, 0, q.PageSize),
		TotalCount: total,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}

	for rows.Next() {
		var externalID string
		texts := make([]sql.NullString, len(textColumns))
		numbers := make([]sql.NullFloat64, len(numericColumns))

		dest := make([]any, 0, len(columns))
		dest = append(dest, &externalID)
		for i := range texts {
			dest = append(dest, &texts[i])
		}
		for i := range numbers {
			dest = append(dest, &numbers[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "%s: scan property", s.dialect)
		}

		rec := models.RawPropertyRecord{"_id": externalID}
		for i, c := range textColumns {
			if texts[i].Valid {
				rec[c] = texts[i].String
			}
		}
		for i, c := range numericColumns {
			if numbers[i].Valid {
				rec[c] = numbers[i].Float64
			}
		}
		page.Properties = append(page.Properties, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "%s: iterate properties", s.dialect)
	}

	return page, nil
}

// Clear deletes every stored property.
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+tableName); err != nil {
		return eris.Wrapf(err, "%s: clear", s.dialect)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) cityClause(city string) (string, []any) {
	variants := services.CityVariants(city)
	if len(variants) == 0 {
		return "", nil
	}
	holders := make([]string, len(variants))
	args := make([]any, len(variants))
	for i, v := range variants {
		holders[i] = s.placeholder(i + 1)
		args[i] = v
	}
	return fmt.Sprintf(" WHERE lower(trim(city)) IN (%s)", strings.Join(holders, ", ")), args
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func nullableText(r models.RawPropertyRecord, field string) any {
	v := strings.TrimSpace(r.String(field))
	if v == "" {
		return nil
	}
	return v
}

func nullableNumber(r models.RawPropertyRecord, field string) any {
	f, ok := r.Float(field)
	if !ok {
		return nil
	}
	return f
}
