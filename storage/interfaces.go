package storage

import (
	"context"

	"property-comparator/models"
)

// DefaultPageSize is used when a Query does not set one.
const DefaultPageSize = 50

// Query selects one page of raw property records for a city.
type Query struct {
	City     string
	Page     int
	PageSize int
}

// normalized returns q with page and page size defaulted.
func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// PropertyRepository is the interface any property source must satisfy.
type PropertyRepository interface {
	FetchProperties(ctx context.Context, q Query) (*models.PropertyPage, error)
}

// PropertyWriter persists raw property records.
type PropertyWriter interface {
	Upsert(ctx context.Context, records []models.RawPropertyRecord) (int, error)
	Close() error
}
