package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-comparator/models"
)

// pagedRepo serves totalCount synthetic records, pageSize at a time.
type pagedRepo struct {
	totalCount int
	failPage   int
	delay      time.Duration

	mu       sync.Mutex
	requests []int
	inFlight int32
	maxSeen  int32
}

func (r *pagedRepo) FetchProperties(ctx context.Context, q Query) (*models.PropertyPage, error) {
	q = q.normalized()
	r.mu.Lock()
	r.requests = append(r.requests, q.Page)
	r.mu.Unlock()

	cur := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&r.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&r.maxSeen, prev, cur) {
			break
		}
	}

	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if q.Page == r.failPage {
		return nil, errors.New("upstream unavailable")
	}

	page := &models.PropertyPage{
		TotalCount: r.totalCount,
		TotalPages: (r.totalCount + q.PageSize - 1) / q.PageSize,
	}
	start := (q.Page - 1) * q.PageSize
	for i := start; i < start+q.PageSize && i < r.totalCount; i++ {
		page.Properties = append(page.Properties, models.RawPropertyRecord{"_id": fmt.Sprintf("r%02d", i)})
	}
	return page, nil
}

func recordIDs(recs []models.RawPropertyRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Identifier()
	}
	return out
}

func TestFetchAllKeepsPageOrder(t *testing.T) {
	repo := &pagedRepo{totalCount: 23, delay: 5 * time.Millisecond}
	all, err := FetchAll(context.Background(), repo, "Pune", 5, 0, 3)
	require.NoError(t, err)
	require.Len(t, all, 23)

	want := make([]string, 23)
	for i := range want {
		want[i] = fmt.Sprintf("r%02d", i)
	}
	assert.Equal(t, want, recordIDs(all))
	assert.LessOrEqual(t, atomic.LoadInt32(&repo.maxSeen), int32(3))
}

func TestFetchAllRespectsMaxPages(t *testing.T) {
	repo := &pagedRepo{totalCount: 100}
	all, err := FetchAll(context.Background(), repo, "Pune", 10, 3, 2)
	require.NoError(t, err)
	assert.Len(t, all, 30)
	assert.Len(t, repo.requests, 3)
}

func TestFetchAllSinglePage(t *testing.T) {
	repo := &pagedRepo{totalCount: 4}
	all, err := FetchAll(context.Background(), repo, "Pune", 10, 0, 2)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, []int{1}, repo.requests)
}

func TestFetchAllKeepsOtherPagesOnPageError(t *testing.T) {
	repo := &pagedRepo{totalCount: 6, failPage: 2}
	all, err := FetchAll(context.Background(), repo, "Pune", 2, 0, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.Equal(t, []string{"r00", "r01", "r04", "r05"}, recordIDs(all))
	assert.Len(t, repo.requests, 3)
}

func TestFetchAllFirstPageError(t *testing.T) {
	repo := &pagedRepo{totalCount: 40, failPage: 1}
	all, err := FetchAll(context.Background(), repo, "Pune", 10, 0, 2)
	require.Error(t, err)
	assert.Nil(t, all)
	assert.Equal(t, []int{1}, repo.requests)
}
