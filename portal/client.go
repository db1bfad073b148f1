// Package portal reads property pages from the property portal's HTTP API.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"property-comparator/models"
	"property-comparator/storage"
	"property-comparator/utils"
)

const propertiesPath = "/api/comparator/properties"

// Options configures a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	// RatePerSecond caps outgoing requests. Zero or less disables the cap.
	RatePerSecond float64
	MaxRetries    int
	RetryDelay    time.Duration
	UserAgent     string
}

// Client implements storage.PropertyRepository over HTTP.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	agent   string
	logger  *utils.Logger

	// flightTimeout bounds one shared request including its retries.
	flightTimeout time.Duration

	// inflight coalesces identical concurrent page requests.
	inflight singleflight.Group
}

var _ storage.PropertyRepository = (*Client)(nil)

// statusError is a non-2xx response from the portal.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("portal: unexpected status %d: %s", e.Code, e.Body)
}

// errUnsuccessful marks a 2xx response whose envelope reports success=false.
var errUnsuccessful = eris.New("portal: response reported success=false")

type envelope struct {
	Success    bool                       `json:"success"`
	Properties []models.RawPropertyRecord `json:"properties"`
	TotalPages json.Number                `json:"totalPages"`
	TotalCount json.Number                `json:"totalCount"`
	Message    string                     `json:"message"`
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options, logger *utils.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("portal: invalid base URL %q", opts.BaseURL)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "property-comparator/1.0"
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: opts.RequestTimeout},
		limiter: rate.NewLimiter(limit, 1),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryDelay,
			Logger:      logger,
			Retryable:   retryable,
		},
		agent:         opts.UserAgent,
		logger:        logger,
		flightTimeout: time.Duration(opts.MaxRetries+1) * opts.RequestTimeout,
	}, nil
}

// FetchProperties requests one page of raw property records for q.City.
func (c *Client) FetchProperties(ctx context.Context, q storage.Query) (*models.PropertyPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = storage.DefaultPageSize
	}

	u := *c.base
	u.Path += propertiesPath
	params := url.Values{}
	if q.City != "" {
		params.Set("city", q.City)
	}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	u.RawQuery = params.Encode()

	key := u.String()
	ch := c.inflight.DoChan(key, func() (any, error) {
		// The flight outlives any one caller, so it gets its own deadline.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		var page *models.PropertyPage
		err := c.retry.Do(fctx, "portal fetch "+u.RawQuery, func(ctx context.Context) error {
			p, err := c.get(ctx, key)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		return page, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "portal: fetch %s", u.RawQuery)
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	page := res.Val.(*models.PropertyPage)
	if res.Shared {
		cp := *page
		page = &cp
	}

	c.logger.Debug("[portal] %s page %d: %d records (%d total)", q.City, q.Page, len(page.Properties), page.TotalCount)
	return page, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*models.PropertyPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "portal: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "portal: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "portal: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, eris.Wrap(err, "portal: decode response")
	}
	if !env.Success {
		if env.Message != "" {
			return nil, eris.Wrap(errUnsuccessful, env.Message)
		}
		return nil, errUnsuccessful
	}

	page := &models.PropertyPage{Properties: env.Properties}
	if page.Properties == nil {
		page.Properties = []models.RawPropertyRecord{}
	}
	page.TotalPages = jsonInt(env.TotalPages)
	page.TotalCount = jsonInt(env.TotalCount)
	return page, nil
}

// retryable reports whether a failed request is worth repeating: transport
// errors, 429 and 5xx responses.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errUnsuccessful) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func jsonInt(n json.Number) int {
	if n == "" {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}
