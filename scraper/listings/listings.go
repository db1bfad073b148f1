// Package listings scrapes property listing pages with a headless browser and
// turns each listing card into a raw property record.
package listings

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"property-comparator/config"
	"property-comparator/models"
	"property-comparator/utils"
)

// Card is what the page script extracts from one listing card.
type Card struct {
	Title     string `json:"title"`
	Developer string `json:"developer"`
	Location  string `json:"location"`
	Price     string `json:"price"`
	Area      string `json:"area"`
	Rate      string `json:"rate"`
	Config    string `json:"config"`
	URL       string `json:"url"`
}

// Detail is what the page script extracts from a listing detail page.
type Detail struct {
	Developer string   `json:"developer"`
	Amenities []string `json:"amenities"`
	Parking   string   `json:"parking"`
	Furnish   string   `json:"furnish"`
	Status    string   `json:"status"`
}

// Scraper collects raw property records for a city.
type Scraper struct {
	cfg     config.ScrapeConfig
	logger  *utils.Logger
	pool    *utils.WorkerPool
	visited *utils.KeySet
	retry   *utils.RetryConfig

	mu      sync.Mutex
	records []models.RawPropertyRecord
}

// New creates a ready-to-use Scraper.
func New(cfg config.ScrapeConfig, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		pool:    utils.NewWorkerPool(cfg.MaxConcurrency, cfg.Interval()),
		visited: utils.NewKeySet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}
}

// Scrape walks the city's listing pages, enriches each new listing from its
// detail page, and returns the records collected.
func (s *Scraper) Scrape(ctx context.Context, city string) ([]models.RawPropertyRecord, error) {
	s.logger.Info("[scraper] Starting scrape for %s: %d pages, %d listings/page",
		city, s.cfg.Pages, s.cfg.ListingsPerPage)

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[scraper] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	for page := 1; page <= s.cfg.Pages; page++ {
		pageURL, err := ListingURL(s.cfg.ListingURLTemplate, city, page)
		if err != nil {
			return s.collected(), err
		}
		s.logger.Info("[scraper] Scraping page %d: %s", page, pageURL)

		cards, err := s.scrapePage(browserCtx, pageURL, page)
		if err != nil {
			s.logger.Error("[scraper] Page %d failed: %v", page, err)
			break
		}

		fresh := make([]models.RawPropertyRecord, 0, len(cards))
		for _, c := range cards {
			if c.URL == "" || !s.visited.Add(c.URL) {
				continue
			}
			fresh = append(fresh, CardRecord(c, city))
		}
		if len(fresh) == 0 {
			s.logger.Warn("[scraper] Page %d returned no new listings, stopping", page)
			break
		}

		s.enrich(browserCtx, fresh)

		s.mu.Lock()
		s.records = append(s.records, fresh...)
		total := len(s.records)
		s.mu.Unlock()
		s.logger.Info("[scraper] Page %d done, %d listings so far", page, total)

		if ctx.Err() != nil {
			break
		}
	}

	out := s.collected()
	s.logger.Info("[scraper] Scrape complete: %d raw records", len(out))
	return out, nil
}

func (s *Scraper) collected() []models.RawPropertyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RawPropertyRecord(nil), s.records...)
}

func (s *Scraper) scrapePage(browserCtx context.Context, pageURL string, pageNum int) ([]Card, error) {
	var cards []Card

	err := s.retry.Do(browserCtx, fmt.Sprintf("scrape-page-%d", pageNum), func(context.Context) error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, 90*time.Second)
		defer cancelTimeout()

		cards = nil
		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(5*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(2*time.Second),
			chromedp.Evaluate(cardScript(s.cfg.ListingsPerPage), &cards),
		)
		if err != nil {
			return eris.Wrap(err, "chromedp page scrape")
		}
		s.logger.Debug("[scraper] Page %d: found %d cards", pageNum, len(cards))
		return nil
	})
	return cards, err
}

// enrich fills developer and amenity fields from each listing's detail page.
func (s *Scraper) enrich(browserCtx context.Context, records []models.RawPropertyRecord) {
	for _, rec := range records {
		rec := rec
		link := rec.String(FieldListingURL)
		s.pool.Submit(browserCtx, func(ctx context.Context) {
			d, err := s.scrapeDetail(ctx, link)
			if err != nil {
				s.logger.Warn("[scraper] Detail page failed for %s: %v", link, err)
				return
			}
			s.mu.Lock()
			ApplyDetail(rec, d)
			s.mu.Unlock()
		})
	}
	s.pool.Wait()
}

func (s *Scraper) scrapeDetail(browserCtx context.Context, link string) (Detail, error) {
	var d Detail
	err := s.retry.Do(browserCtx, "detail-page", func(context.Context) error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, 60*time.Second)
		defer cancelTimeout()

		return chromedp.Run(ctx,
			chromedp.Navigate(link),
			chromedp.Sleep(3*time.Second),
			chromedp.Evaluate(detailScript, &d),
		)
	})
	return d, err
}

// Extra raw fields the scraper records alongside the standard ones.
const (
	FieldListingURL = "listing_url"
	FieldTitle      = "title"
	FieldScrapedAt  = "scraped_at"
)

var (
	numberRe   = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)
	bedroomsRe = regexp.MustCompile(`(?i)(\d+)\s*(?:bhk|bed)`)
	parkingRe  = regexp.MustCompile(`\d+`)
	unitRe     = regexp.MustCompile(`(?i)[\d\s](crores?|cr|lakhs?|lacs?|l)\b`)
)

// ListingURL fills the {city} and {page} placeholders of a listing URL
// template. The city is lower-cased and hyphenated.
func ListingURL(template, city string, page int) (string, error) {
	slug := strings.Join(strings.Fields(strings.ToLower(city)), "-")
	if slug == "" {
		return "", eris.New("scraper: city is required")
	}
	raw := strings.NewReplacer("{city}", url.PathEscape(slug), "{page}", strconv.Itoa(page)).Replace(template)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("scraper: invalid listing URL %q", raw)
	}
	return u.String(), nil
}

// CardRecord converts a listing card into a raw property record.
func CardRecord(c Card, city string) models.RawPropertyRecord {
	rec := models.RawPropertyRecord{
		"_id":           c.URL,
		FieldListingURL: c.URL,
		"city":          strings.TrimSpace(city),
		FieldScrapedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	setText(rec, FieldTitle, c.Title)
	setText(rec, "location", c.Location)
	setText(rec, "developer_name", c.Developer)

	if v, ok := ParsePrice(c.Price); ok {
		rec["price_value"] = v
	}
	if v, ok := firstNumber(c.Area); ok {
		rec["area"] = v
	}
	if v, ok := firstNumber(c.Rate); ok {
		rec["rate_sqft"] = v
	}
	if m := bedroomsRe.FindStringSubmatch(c.Config + " " + c.Title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			rec["bedrooms"] = float64(n)
		}
	}
	if _, hasRate := rec["rate_sqft"]; !hasRate {
		price, okP := rec["price_value"].(float64)
		area, okA := rec["area"].(float64)
		if okP && okA && area > 0 {
			rec["rate_sqft"] = price / area
		}
	}
	return rec
}

// ApplyDetail merges detail page data into rec without overwriting fields the
// card already supplied.
func ApplyDetail(rec models.RawPropertyRecord, d Detail) {
	if rec.String("developer_name") == "" {
		setText(rec, "developer_name", d.Developer)
	}
	setText(rec, "furnishing_status", d.Furnish)
	setText(rec, "construction_status", d.Status)
	if len(d.Amenities) > 0 {
		rec["amenities_count"] = float64(len(d.Amenities))
	}
	if m := parkingRe.FindString(d.Parking); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			rec["parking_count"] = float64(n)
		}
	}
}

// ParsePrice reads Indian price strings such as "₹1.25 Cr", "85 Lac" or
// "₹45,00,000" into rupees.
func ParsePrice(s string) (float64, bool) {
	v, ok := firstNumber(s)
	if !ok {
		return 0, false
	}
	if m := unitRe.FindStringSubmatch(s); m != nil {
		if strings.HasPrefix(strings.ToLower(m[1]), "c") {
			v *= 1e7
		} else {
			v *= 1e5
		}
	}
	return v, true
}

func firstNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func setText(rec models.RawPropertyRecord, field, v string) {
	v = strings.TrimSpace(v)
	if v != "" && v != "N/A" {
		rec[field] = v
	}
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	for _, p := range []string{"/usr/bin/chromium", "/snap/bin/chromium", "/opt/google/chrome/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
