// Package session holds a user's comparator state for one city: the fetched
// property list, the comparison selection, and the rankings derived from them.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"property-comparator/models"
	"property-comparator/services"
	"property-comparator/storage"
	"property-comparator/utils"
)

// MaxSelection is the most properties that can be compared at once.
const MaxSelection = 4

// State is the session's position in the comparator flow.
type State int

const (
	// Browsing: nothing selected.
	Browsing State = iota
	// Building: some properties selected, the full list still shown.
	Building
	// Comparing: the comparison table over the selection is shown.
	Comparing
)

func (s State) String() string {
	switch s {
	case Browsing:
		return "browsing"
	case Building:
		return "building"
	case Comparing:
		return "comparing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options tunes how a Session talks to its repository.
type Options struct {
	PageSize     int
	FetchTimeout time.Duration
	// MaxPages and Concurrency bound RefreshAll.
	MaxPages    int
	Concurrency int
}

// BrowsingView is the full deduplicated list for the city, with rankings
// over that list for win-count badges.
type BrowsingView struct {
	Properties []models.ScoredProperty `json:"properties"`
	Ranking    models.RankingResult    `json:"ranking"`
}

// ComparingView is the comparison table over the selection.
type ComparingView struct {
	Table   []models.ScoredProperty `json:"table"`
	Ranking models.RankingResult    `json:"ranking"`
}

// FetchResult carries a repository response back to Apply. Results from a
// superseded fetch are ignored.
type FetchResult struct {
	Generation uint64
	City       string
	// Page is 0 when the result covers every page.
	Page       int
	Records    []models.RawPropertyRecord
	TotalPages int
	TotalCount int
	Err        error
	// Partial marks a result whose Records are usable despite Err: some
	// pages of a FetchAll failed and count as empty.
	Partial bool
}

// Session is the comparator state for one user. Its methods may be called
// from several goroutines.
type Session struct {
	repo     storage.PropertyRepository
	pipeline *services.Pipeline
	logger   *utils.Logger
	opts     Options

	mu         sync.Mutex
	city       string
	query      string
	generation uint64

	raws       []models.RawPropertyRecord
	page       int
	totalPages int
	totalCount int
	properties []models.ScoredProperty

	selection []models.ScoredProperty
	comparing bool

	ranking *models.RankingResult
	notice  string
	lastErr error
}

// New creates a Session in the Browsing state with no city.
func New(repo storage.PropertyRepository, pipeline *services.Pipeline, logger *utils.Logger, opts Options) *Session {
	if opts.PageSize < 1 {
		opts.PageSize = storage.DefaultPageSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Session{repo: repo, pipeline: pipeline, logger: logger, opts: opts}
}

// SetCity switches the session to city. A real change clears the list and
// the selection, returns to Browsing, and invalidates in-flight fetches.
func (s *Session) SetCity(city string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.city != "" && services.CityKey(city) == services.CityKey(s.city) {
		s.city = city
		return
	}

	s.city = city
	s.query = ""
	s.generation++
	s.raws = nil
	s.page, s.totalPages, s.totalCount = 0, 0, 0
	s.properties = nil
	s.selection = nil
	s.comparing = false
	s.ranking = nil
	s.notice = ""
	s.lastErr = nil
	s.logger.Info("[session] City set to %q", city)
}

// City returns the current city.
func (s *Session) City() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.city
}

// SetQuery filters the browsing list by a search string. The selection is
// left alone.
func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = q
	s.reprocess()
}

// State reports the current comparator state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	switch {
	case s.comparing:
		return Comparing
	case len(s.selection) == 0:
		return Browsing
	default:
		return Building
	}
}

// Add appends the property with id to the selection. Adding a property that
// is already selected does nothing. At capacity it returns
// models.ErrSelectionLimitExceeded and leaves the selection unchanged.
func (s *Session) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.selection, id) >= 0 {
		return nil
	}
	if len(s.selection) >= MaxSelection {
		s.notice = fmt.Sprintf("You can compare up to %d properties at once", MaxSelection)
		return models.ErrSelectionLimitExceeded
	}
	i := indexOf(s.properties, id)
	if i < 0 {
		s.notice = fmt.Sprintf("Property %s is not in the current list", id)
		return models.ErrUnknownProperty
	}

	s.selection = append(s.selection, s.properties[i])
	s.notice = ""
	s.invalidate()
	return nil
}

// Remove drops id from the selection. Falling below two members while
// comparing returns the session to Building.
func (s *Session) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.selection, id)
	if i < 0 {
		return
	}
	next := make([]models.ScoredProperty, 0, len(s.selection)-1)
	next = append(next, s.selection[:i]...)
	next = append(next, s.selection[i+1:]...)
	s.selection = next

	if s.comparing && len(s.selection) < 2 {
		s.comparing = false
	}
	s.invalidate()
}

// Clear empties the selection and returns to Browsing.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = nil
	s.comparing = false
	s.invalidate()
}

// EnterComparing shows the comparison table. It needs at least two selected
// properties and otherwise returns models.ErrInsufficientSelection.
func (s *Session) EnterComparing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.selection) < 2 {
		s.notice = "Select at least 2 properties to compare"
		return models.ErrInsufficientSelection
	}
	if !s.comparing {
		s.comparing = true
		s.invalidate()
	}
	s.notice = ""
	return nil
}

// ExitComparing goes back to the full list, keeping the selection.
func (s *Session) ExitComparing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.comparing {
		s.comparing = false
		s.invalidate()
	}
}

// Selection returns the selected properties in insertion order.
func (s *Session) Selection() []models.ScoredProperty {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScoredProperty(nil), s.selection...)
}

// Notice returns the last user-facing message, or "".
func (s *Session) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// LastError returns the error of the most recent applied fetch, or nil if it
// succeeded.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Pages returns the current page and the page and record totals reported by
// the last successful fetch.
func (s *Session) Pages() (page, totalPages, totalCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.totalPages, s.totalCount
}

// Fetch requests one page for the current city. Starting a fetch supersedes
// any fetch still in flight. The repository call is bounded by the session's
// fetch timeout.
func (s *Session) Fetch(ctx context.Context, page int) FetchResult {
	if page < 1 {
		page = 1
	}
	res := s.begin(page)

	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	p, err := s.repo.FetchProperties(ctx, storage.Query{City: res.City, Page: page, PageSize: s.opts.PageSize})
	if err != nil {
		res.Err = models.NewUpstreamFetchError(res.City, page, err)
		return res
	}
	res.Records = p.Properties
	res.TotalPages = p.TotalPages
	res.TotalCount = p.TotalCount
	return res
}

// FetchAll requests every page for the current city, up to Options.MaxPages.
func (s *Session) FetchAll(ctx context.Context) FetchResult {
	res := s.begin(0)

	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	recs, err := storage.FetchAll(ctx, s.repo, res.City, s.opts.PageSize, s.opts.MaxPages, s.opts.Concurrency)
	if err != nil {
		res.Err = models.NewUpstreamFetchError(res.City, 0, err)
		if recs == nil {
			return res
		}
		res.Partial = true
	}
	res.Records = recs
	res.TotalPages = 1
	res.TotalCount = len(recs)
	return res
}

func (s *Session) begin(page int) FetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return FetchResult{Generation: s.generation, City: s.city, Page: page}
}

// Apply installs a fetch result. It reports false when the result belongs to
// a superseded fetch and was dropped. A failed fetch keeps the current list
// and records the error for LastError. A partial result replaces the list
// and records the error as well.
func (s *Session) Apply(res FetchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Generation != s.generation {
		s.logger.Debug("[session] Dropping stale result for %q page %d (generation %d, current %d)",
			res.City, res.Page, res.Generation, s.generation)
		return false
	}

	if res.Err != nil && !res.Partial {
		s.lastErr = res.Err
		s.logger.Warn("[session] %v; keeping %d properties from the previous fetch", res.Err, len(s.properties))
		return true
	}
	if res.Partial {
		s.logger.Warn("[session] %v; showing the %d records that loaded", res.Err, len(res.Records))
	}

	s.lastErr = res.Err
	s.raws = res.Records
	s.page = res.Page
	s.totalPages = res.TotalPages
	s.totalCount = res.TotalCount
	s.reprocess()
	return true
}

// Refresh fetches and applies one page. It returns the upstream error, if
// any; the previous list stays in place when it fails.
func (s *Session) Refresh(ctx context.Context, page int) error {
	return s.applied(s.Fetch(ctx, page))
}

// RefreshAll fetches and applies every page of the current city.
func (s *Session) RefreshAll(ctx context.Context) error {
	return s.applied(s.FetchAll(ctx))
}

func (s *Session) applied(res FetchResult) error {
	if !s.Apply(res) {
		return nil
	}
	return res.Err
}

// Browsing returns the full list view.
func (s *Session) Browsing() BrowsingView {
	s.mu.Lock()
	defer s.mu.Unlock()

	props := append([]models.ScoredProperty(nil), s.properties...)
	var ranking models.RankingResult
	if s.comparing {
		ranking = services.RankAll(props, models.Metrics())
	} else {
		ranking = cloneRanking(s.activeRanking())
	}
	return BrowsingView{Properties: props, Ranking: ranking}
}

// Comparing returns the comparison table. ok is false outside the Comparing
// state.
func (s *Session) Comparing() (view ComparingView, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.comparing {
		return ComparingView{}, false
	}
	return ComparingView{
		Table:   append([]models.ScoredProperty(nil), s.selection...),
		Ranking: cloneRanking(s.activeRanking()),
	}, true
}

// activeRanking ranks the selection while comparing and the full list
// otherwise, computing it at most once per change.
func (s *Session) activeRanking() models.RankingResult {
	if s.ranking == nil {
		set := s.properties
		if s.comparing {
			set = s.selection
		}
		r := services.RankAll(set, models.Metrics())
		s.ranking = &r
	}
	return *s.ranking
}

func (s *Session) reprocess() {
	s.properties = s.pipeline.Process(s.raws, services.Filter{City: s.city, Query: s.query})
	s.invalidate()
}

func (s *Session) invalidate() {
	s.ranking = nil
}

func indexOf(props []models.ScoredProperty, id string) int {
	for i := range props {
		if props[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRanking(r models.RankingResult) models.RankingResult {
	out := models.RankingResult{
		Winners:       make(map[models.MetricKey]int, len(r.Winners)),
		WinCount:      append([]int(nil), r.WinCount...),
		WinPercentage: append([]int(nil), r.WinPercentage...),
	}
	for k, v := range r.Winners {
		out.Winners[k] = v
	}
	return out
}
