package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-comparator/storage"
	"property-comparator/utils"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}, utils.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestFetchPropertiesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/comparator/properties", r.URL.Path)
		assert.Equal(t, "Gurugram", r.URL.Query().Get("city"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"totalPages":3,"totalCount":120,"properties":[
			{"_id":"a1","city":"Gurugram","builder_grade":8.5,"price_value":"1,20,00,000"},
			{"_id":"a2","city":"Gurugram","investment_potential":null}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/")
	page, err := c.FetchProperties(context.Background(), storage.Query{City: "Gurugram", Page: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 120, page.TotalCount)
	require.Len(t, page.Properties, 2)
	assert.Equal(t, "a1", page.Properties[0].Identifier())

	grade, ok := page.Properties[0].Float("builder_grade")
	require.True(t, ok)
	assert.Equal(t, 8.5, grade)
	_, ok = page.Properties[1].Float("investment_potential")
	assert.False(t, ok)
}

func TestFetchPropertiesRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"totalPages":1,"totalCount":0,"properties":[]}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).FetchProperties(context.Background(), storage.Query{City: "Pune"})
	require.NoError(t, err)
	assert.Empty(t, page.Properties)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchPropertiesDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad city", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchProperties(context.Background(), storage.Query{City: "??"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchPropertiesUnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"database offline"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchProperties(context.Background(), storage.Query{City: "Pune"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsuccessful)
	assert.Contains(t, err.Error(), "database offline")
}

func TestFetchPropertiesHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(300 * time.Millisecond):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv.URL).FetchProperties(ctx, storage.Query{City: "Pune"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "not a url"}, utils.NewNopLogger())
	assert.Error(t, err)
}

func TestFetchPropertiesCoalescesConcurrentRequests(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		_, _ = w.Write([]byte(`{"success":true,"totalPages":1,"totalCount":1,"properties":[{"_id":"x"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q := storage.Query{City: "Pune", Page: 1}

	const n = 4
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			page, err := c.FetchProperties(context.Background(), q)
			if err == nil && len(page.Properties) != 1 {
				err = assert.AnError
			}
			results <- err
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < n; i++ {
		require.NoError(t, <-results)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchPropertiesJoinedCallerIgnoresOtherDeadline(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"success":true,"totalPages":1,"totalCount":1,"properties":[{"_id":"x"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q := storage.Query{City: "X", Page: 1}

	short := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.FetchProperties(ctx, q)
		short <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	page, err := c.FetchProperties(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, page.Properties, 1)
	assert.Equal(t, "x", page.Properties[0].Identifier())

	assert.ErrorIs(t, <-short, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
