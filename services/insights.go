package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"property-comparator/models"
	"property-comparator/utils"
)

const topScoredLimit = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(city string, props []models.ScoredProperty) *models.InsightReport {
	report := &models.InsightReport{
		City:                 city,
		PropertiesByLocation: make(map[string]int),
		TrendBreakdown:       make(map[models.MarketTrend]int),
	}

	if len(props) == 0 {
		return report
	}

	report.TotalProperties = len(props)

	var priced []models.ScoredProperty
	for _, p := range props {
		if p.Price > 0 {
			priced = append(priced, p)
		}
		report.PropertiesByLocation[p.Location]++
		report.TrendBreakdown[p.MarketTrend]++
	}

	// Price stats (only properties with price > 0)
	if len(priced) > 0 {
		mostExpensive := priced[0]
		report.MinPrice = priced[0].Price
		report.MaxPrice = priced[0].Price
		var total float64
		for _, p := range priced {
			total += p.Price
			if p.Price < report.MinPrice {
				report.MinPrice = p.Price
			}
			if p.Price > report.MaxPrice {
				report.MaxPrice = p.Price
				mostExpensive = p
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MostExpensive = &mostExpensive
	}

	// Top by overall score; stable so equal scores keep list order.
	ranked := make([]models.ScoredProperty, len(props))
	copy(ranked, props)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].OverallScore > ranked[j].OverallScore
	})
	if len(ranked) > topScoredLimit {
		ranked = ranked[:topScoredLimit]
	}
	report.TopScored = ranked

	s.logger.Debug("[insights] %s: %d properties, %d priced", city, len(props), len(priced))
	return report
}

var (
	titleColor   = color.New(color.FgMagenta, color.Bold)
	sectionColor = color.New(color.FgYellow, color.Bold)
	amountColor  = color.New(color.FgGreen, color.Bold)
	peakColor    = color.New(color.FgRed, color.Bold)
)

// Print writes a human-readable report to w.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 58)

	titleColor.Fprintf(w, "\n%s\n  📊 PROPERTY INSIGHTS: %s\n%s\n\n", sep, strings.ToUpper(r.City), sep)

	section(w, "Overview")
	fmt.Fprintf(w, "  Total properties : %d\n\n", r.TotalProperties)

	section(w, "Price Statistics")
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : %s\n", amountColor.Sprint(FormatINR(r.AveragePrice)))
		fmt.Fprintf(w, "  Minimum price : %s\n", amountColor.Sprint(FormatINR(r.MinPrice)))
		fmt.Fprintf(w, "  Maximum price : %s\n", amountColor.Sprint(FormatINR(r.MaxPrice)))
	} else {
		fmt.Fprintln(w, "  No price data available")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		section(w, "Most Expensive Property")
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Name, 54))
		fmt.Fprintf(w, "  Price : %s\n\n", peakColor.Sprint(FormatINR(r.MostExpensive.Price)))
	}

	section(w, fmt.Sprintf("Top %d by Overall Score", topScoredLimit))
	if len(r.TopScored) == 0 {
		fmt.Fprintln(w, "  No scored properties found")
	}
	for i, p := range r.TopScored {
		fmt.Fprintf(w, "  %d. %-42s %s\n", i+1, truncate(p.Name, 40), amountColor.Sprintf("%.1f/10", p.OverallScore))
	}
	fmt.Fprintln(w)

	section(w, "Properties by Location")
	type locCount struct {
		loc   string
		count int
	}
	locs := make([]locCount, 0, len(r.PropertiesByLocation))
	for loc, cnt := range r.PropertiesByLocation {
		locs = append(locs, locCount{loc, cnt})
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].count != locs[j].count {
			return locs[i].count > locs[j].count
		}
		return locs[i].loc < locs[j].loc
	})
	for _, lc := range locs {
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.loc, 28), strings.Repeat("█", lc.count), lc.count)
	}
	fmt.Fprintln(w)

	section(w, "Market Trend")
	for _, trend := range []models.MarketTrend{models.TrendRising, models.TrendStable, models.TrendDeclining} {
		n := r.TrendBreakdown[trend]
		fmt.Fprintf(w, "  %-10s %s (%d)\n", trend, strings.Repeat("█", n), n)
	}

	titleColor.Fprintf(w, "\n%s\n\n", sep)
}

func section(w io.Writer, title string) {
	sectionColor.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 58))
}

// FormatINR renders a rupee amount using crore/lakh units.
func FormatINR(price float64) string {
	switch {
	case price >= 10000000:
		return fmt.Sprintf("₹%.1fCr", price/10000000)
	case price >= 100000:
		return fmt.Sprintf("₹%.1fL", price/100000)
	default:
		return fmt.Sprintf("₹%.0f", price)
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
