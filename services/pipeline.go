package services

import (
	"sort"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"property-comparator/models"
	"property-comparator/utils"
)

// cityAliases folds alternate city names onto one key.
var cityAliases = map[string]string{
	"gurgaon":   "gurgaon/gurugram",
	"gurugram":  "gurgaon/gurugram",
	"bangalore": "bangalore/bengaluru",
	"bengaluru": "bangalore/bengaluru",
	"bombay":    "mumbai",
	"mumbai":    "mumbai",
}

// Filter narrows the processed list. Empty fields match everything.
type Filter struct {
	City  string
	Query string
}

// Pipeline runs raw records through normalization, filtering, scoring and
// location dedup. It holds no state between calls, so identical input always
// yields identical output.
type Pipeline struct {
	normalizer *Normalizer
	logger     *utils.Logger
}

// NewPipeline creates a Pipeline with the given logger.
func NewPipeline(logger *utils.Logger) *Pipeline {
	return &Pipeline{normalizer: NewNormalizer(logger), logger: logger}
}

// Process converts raws into a deduplicated, scored property list.
func (p *Pipeline) Process(raws []models.RawPropertyRecord, filter Filter) []models.ScoredProperty {
	scored := DedupeByLocation(p.Scored(raws, filter))
	p.logger.Info("[pipeline] Processed %d raw → %d properties (city=%q query=%q)",
		len(raws), len(scored), filter.City, filter.Query)
	return scored
}

// Scored normalizes, filters and scores raws without collapsing locations.
func (p *Pipeline) Scored(raws []models.RawPropertyRecord, filter Filter) []models.ScoredProperty {
	normalized := p.normalizer.NormalizeAll(raws)

	wantCity := CityKey(filter.City)
	query := foldText(filter.Query)

	kept := make([]models.ComparableProperty, 0, len(normalized))
	for _, prop := range normalized {
		if wantCity != "" && prop.City != UnknownCity && CityKey(prop.City) != wantCity {
			continue
		}
		if query != "" && !matchesQuery(prop, query) {
			continue
		}
		kept = append(kept, prop)
	}

	return ScoreAll(kept)
}

// CityKey returns the comparison key for a city name: transliterated to
// ASCII, case-folded, whitespace-collapsed, with known aliases merged.
func CityKey(city string) string {
	key := foldText(city)
	if alias, ok := cityAliases[key]; ok {
		return alias
	}
	return key
}

// CityVariants returns the lower-cased spellings that share city's key, for
// stores that filter by plain string equality.
func CityVariants(city string) []string {
	key := CityKey(city)
	if key == "" {
		return nil
	}
	var out []string
	for name, alias := range cityAliases {
		if alias == key {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return []string{key}
	}
	sort.Strings(out)
	return out
}

// matchesQuery reports whether a folded query is a substring of the
// property's name, location or developer.
func matchesQuery(p models.ComparableProperty, foldedQuery string) bool {
	for _, field := range []string{p.Name, p.Location, p.DeveloperName} {
		if strings.Contains(foldText(field), foldedQuery) {
			return true
		}
	}
	return false
}

func foldText(s string) string {
	return normaliseText(cases.Fold().String(unidecode.Unidecode(norm.NFKC.String(s))))
}
