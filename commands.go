package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"property-comparator/models"
	"property-comparator/portal"
	"property-comparator/scraper/listings"
	"property-comparator/services"
	"property-comparator/session"
	"property-comparator/storage"
)

var (
	cityFlag  string
	pageFlag  int
	onPage    int
	queryFlag string
	idsFlag   []string
	csvFlag   string
	clearFlag bool
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List the deduplicated, scored properties of a city",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, closeRepo, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer closeRepo()

		s.SetCity(cityFlag)
		s.SetQuery(queryFlag)
		if err := s.Refresh(ctx, pageFlag); err != nil {
			logger.Error("%v", err)
		}

		view := s.Browsing()
		if jsonFlag {
			return writeJSON(os.Stdout, view)
		}
		page, totalPages, totalCount := s.Pages()
		fmt.Printf("%s: page %d of %d (%d listings, %d shown after dedup)\n\n",
			cityFlag, page, totalPages, totalCount, len(view.Properties))
		printBrowsing(os.Stdout, view)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Rank two to four properties of a city against each other",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, closeRepo, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer closeRepo()

		s.SetCity(cityFlag)
		if err := loadCity(ctx, s, onPage); err != nil {
			return err
		}

		for _, id := range idsFlag {
			err := s.Add(strings.TrimSpace(id))
			if errors.Is(err, models.ErrSelectionLimitExceeded) || errors.Is(err, models.ErrUnknownProperty) {
				logger.Warn("%s", s.Notice())
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := s.EnterComparing(); err != nil {
			return eris.Wrap(err, s.Notice())
		}

		view, _ := s.Comparing()
		if jsonFlag {
			return writeJSON(os.Stdout, view)
		}
		printComparison(os.Stdout, view)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Summarize prices, scores and market trends for a city",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, closeRepo, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer closeRepo()

		s.SetCity(cityFlag)
		if err := loadCity(ctx, s, 0); err != nil {
			return err
		}

		svc := services.NewInsightService(logger)
		report := svc.Generate(cityFlag, s.Browsing().Properties)
		if jsonFlag {
			return writeJSON(os.Stdout, report)
		}
		svc.Print(os.Stdout, report)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a CSV export of raw property records into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path := csvFlag
		if path == "" {
			path = cfg.Import.CSVPath
		}

		records, err := storage.LoadCSV(path)
		if err != nil {
			return err
		}
		return saveRecords(ctx, records, path)
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape listing pages for a city into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		records, err := listings.New(cfg.Scrape, logger).Scrape(ctx, cityFlag)
		if err != nil && len(records) == 0 {
			return err
		}
		if err != nil {
			logger.Warn("[scrape] Partial scrape: %v", err)
		}
		if len(records) == 0 {
			return eris.Errorf("no listings were scraped for %q", cityFlag)
		}
		return saveRecords(ctx, records, "scrape of "+cityFlag)
	},
}

func init() {
	for _, c := range []*cobra.Command{browseCmd, compareCmd, insightsCmd, scrapeCmd} {
		c.Flags().StringVar(&cityFlag, "city", "", "city to load (required)")
		_ = c.MarkFlagRequired("city")
	}
	browseCmd.Flags().IntVar(&pageFlag, "page", 1, "page number")
	browseCmd.Flags().StringVar(&queryFlag, "query", "", "filter by name, location or developer")
	compareCmd.Flags().StringSliceVar(&idsFlag, "ids", nil,
		"comma-separated property ids (2-4); without --page they must survive location dedup across all pages")
	compareCmd.Flags().IntVar(&onPage, "page", 0, "resolve ids on this page only, as browse --page shows it (0 = all pages)")
	_ = compareCmd.MarkFlagRequired("ids")
	importCmd.Flags().StringVar(&csvFlag, "csv", "", "path to CSV file (defaults to import.csv_path)")
	for _, c := range []*cobra.Command{importCmd, scrapeCmd} {
		c.Flags().BoolVar(&clearFlag, "clear", false, "delete stored properties first")
	}

	rootCmd.AddCommand(browseCmd, compareCmd, insightsCmd, importCmd, scrapeCmd)
}

func newSession(ctx context.Context) (*session.Session, func(), error) {
	repo, closeRepo, err := openRepository(ctx)
	if err != nil {
		return nil, nil, err
	}
	s := session.New(repo, services.NewPipeline(logger), logger, session.Options{
		PageSize:     cfg.Fetch.PageSize,
		FetchTimeout: cfg.Fetch.Timeout,
		MaxPages:     cfg.Fetch.MaxPages,
		Concurrency:  cfg.Fetch.MaxConcurrency,
	})
	return s, closeRepo, nil
}

// loadCity fills s with one page, or with every page when page is 0. A load
// where only some pages failed still returns nil after a warning.
func loadCity(ctx context.Context, s *session.Session, page int) error {
	if page > 0 {
		return s.Refresh(ctx, page)
	}
	err := s.RefreshAll(ctx)
	if err != nil && len(s.Browsing().Properties) > 0 {
		logger.Warn("Some pages failed to load, continuing with the rest: %v", err)
		return nil
	}
	return err
}

func openRepository(ctx context.Context) (storage.PropertyRepository, func(), error) {
	switch sourceFlag {
	case "store":
		st, err := openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "portal":
		c, err := portal.NewClient(portal.Options{
			BaseURL:        cfg.Portal.BaseURL,
			RequestTimeout: cfg.Portal.RequestTimeout,
			RatePerSecond:  cfg.Portal.RatePerSecond,
			MaxRetries:     cfg.Fetch.MaxRetries,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	return nil, nil, eris.Errorf("unknown --source %q (want store or portal)", sourceFlag)
}

func openStore(ctx context.Context) (*storage.SQLStore, error) {
	if cfg.Store.Driver == "postgres" {
		st, err := storage.OpenPostgres(ctx, cfg.DSN(), logger)
		if err != nil {
			logger.Error("Make sure Postgres is running: docker compose up -d")
			return nil, err
		}
		return st, nil
	}
	if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create data dir")
		}
	}
	return storage.OpenSQLite(ctx, cfg.Store.SQLitePath, logger)
}

func saveRecords(ctx context.Context, records []models.RawPropertyRecord, origin string) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if clearFlag {
		if err := st.Clear(ctx); err != nil {
			return err
		}
	}
	n, err := st.Upsert(ctx, records)
	if err != nil {
		return err
	}
	logger.Info("Stored %d of %d records from %s (driver: %s)", n, len(records), origin, cfg.Store.Driver)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func printBrowsing(w io.Writer, view session.BrowsingView) {
	table := newTable(w, []string{"#", "ID", "Name", "Location", "Price", "Score", "Trend", "Wins"})
	for i, p := range view.Properties {
		wins := 0
		if i < len(view.Ranking.WinCount) {
			wins = view.Ranking.WinCount[i]
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			p.ID,
			p.Name,
			p.Location,
			services.FormatINR(p.Price),
			fmt.Sprintf("%.1f", p.OverallScore),
			trendCell(p.MarketTrend),
			fmt.Sprintf("%d", wins),
		})
	}
	table.Render()
}

func printComparison(w io.Writer, view session.ComparingView) {
	header := []string{"Metric"}
	for _, p := range view.Table {
		header = append(header, p.Name)
	}
	table := newTable(w, header)

	for _, m := range models.Metrics() {
		row := []string{m.Label}
		winner, hasWinner := view.Ranking.Winner(m.Key)
		for i, p := range view.Table {
			cell := fmt.Sprintf("%.1f", p.Value(m.Key))
			if hasWinner && winner == i {
				cell = color.GreenString(cell + " *")
			}
			row = append(row, cell)
		}
		table.Append(row)
	}

	price := []string{"Price"}
	wins := []string{"Wins"}
	for i, p := range view.Table {
		price = append(price, services.FormatINR(p.Price))
		wins = append(wins, fmt.Sprintf("%d (%d%%)", view.Ranking.WinCount[i], view.Ranking.WinPercentage[i]))
	}
	table.Append(price)
	table.Append(wins)
	table.Render()
}

func trendCell(t models.MarketTrend) string {
	switch t {
	case models.TrendRising:
		return color.GreenString(string(t))
	case models.TrendDeclining:
		return color.RedString(string(t))
	}
	return color.YellowString(string(t))
}
