package storage

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"property-comparator/models"
)

// FetchAll loads every page of a city from repo. Page 1 is fetched first to
// learn the page count; the remaining pages are fetched with at most
// concurrency requests in flight. Records are returned in page order.
// maxPages <= 0 means no limit.
//
// A failed page after the first counts as empty: the records of the other
// pages are still returned, together with the joined page errors. A failed
// first page returns nil records.
func FetchAll(ctx context.Context, repo PropertyRepository, city string, pageSize, maxPages, concurrency int) ([]models.RawPropertyRecord, error) {
	first, err := repo.FetchProperties(ctx, Query{City: city, Page: 1, PageSize: pageSize})
	if err != nil {
		return nil, eris.Wrapf(err, "fetch all %q: page 1", city)
	}

	totalPages := first.TotalPages
	if maxPages > 0 && totalPages > maxPages {
		totalPages = maxPages
	}
	all := make([]models.RawPropertyRecord, 0, len(first.Properties))
	if totalPages <= 1 {
		return append(all, first.Properties...), nil
	}

	pages := make([][]models.RawPropertyRecord, totalPages)
	pageErrs := make([]error, totalPages)
	pages[0] = first.Properties

	if concurrency < 1 {
		concurrency = 1
	}
	var g errgroup.Group
	g.SetLimit(concurrency)

	for p := 2; p <= totalPages; p++ {
		p := p
		g.Go(func() error {
			page, err := repo.FetchProperties(ctx, Query{City: city, Page: p, PageSize: pageSize})
			if err != nil {
				pageErrs[p-1] = eris.Wrapf(err, "fetch all %q: page %d", city, p)
				return nil
			}
			pages[p-1] = page.Properties
			return nil
		})
	}
	_ = g.Wait()

	for _, recs := range pages {
		all = append(all, recs...)
	}
	return all, errors.Join(pageErrs...)
}
