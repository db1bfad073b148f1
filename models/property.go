package models

// RawPropertyRecord is an unprocessed property document as returned by a
// Property Repository. Any field may be absent, null, or of the wrong type.
type RawPropertyRecord map[string]any

// PropertyPage is one page of raw records for a city.
type PropertyPage struct {
	Properties []RawPropertyRecord `json:"properties"`
	TotalPages int                 `json:"totalPages"`
	TotalCount int                 `json:"totalCount"`
}

// MetricValues holds the comparable source metrics of a property. Every
// value is finite and rounded to one decimal place.
type MetricValues struct {
	BuilderReputation   float64 `json:"builderReputation"`
	LocationScore       float64 `json:"locationScore"`
	InvestmentPotential float64 `json:"investmentPotential"`
	FiveYearGrowth      float64 `json:"fiveYearGrowth"`
	LifestyleIndex      float64 `json:"lifestyleIndex"`
	Valuation           float64 `json:"valuation"`
}

// AmenitySignals are the raw amenity inputs used to synthesize an
// AmenitiesProfile. Zero means the signal was absent.
type AmenitySignals struct {
	AmenitiesCount   float64 `json:"amenitiesCount"`
	ParkingCount     float64 `json:"parkingCount"`
	GreenCover       float64 `json:"greenCover"`
	SecurityScore    float64 `json:"securityScore"`
	RecreationScore  float64 `json:"recreationScore"`
	ConvenienceScore float64 `json:"convenienceScore"`
}

// ComparableProperty is the canonical, fully-populated form of a raw record.
type ComparableProperty struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Location           string         `json:"location"`
	City               string         `json:"city"`
	DeveloperName      string         `json:"developerName,omitempty"`
	Price              float64        `json:"price"`
	Area               float64        `json:"area"`
	Bedrooms           float64        `json:"bedrooms"`
	RatePerSqft        float64        `json:"ratePerSqft"`
	RentalYield        float64        `json:"rentalYield"`
	MarketTrend        MarketTrend    `json:"marketTrend"`
	NeighbourhoodClass string         `json:"neighbourhoodClass"`
	Metrics            MetricValues   `json:"metrics"`
	Amenities          AmenitySignals `json:"amenities"`
}

// AmenitiesProfile is a synthesized estimate for visualization only. Each
// sub-score is clamped to [1, 10] and rounded to one decimal place.
type AmenitiesProfile struct {
	Security    float64 `json:"security"`
	Parking     float64 `json:"parking"`
	Recreation  float64 `json:"recreation"`
	Convenience float64 `json:"convenience"`
	GreenSpace  float64 `json:"greenSpace"`
}

// ScoredProperty is a ComparableProperty with its derived scores attached.
type ScoredProperty struct {
	ComparableProperty
	OverallScore     float64          `json:"overallScore"`
	AmenitiesProfile AmenitiesProfile `json:"amenitiesProfile"`
}

// Value returns the property's value for a metric key, or 0 for an unknown key.
func (p ScoredProperty) Value(key MetricKey) float64 {
	if key == MetricOverallScore {
		return p.OverallScore
	}
	return p.Metrics.Value(key)
}

// Value returns the source metric for key. OverallScore is never a source
// metric, so it reads as 0 here.
func (m MetricValues) Value(key MetricKey) float64 {
	switch key {
	case MetricBuilderReputation:
		return m.BuilderReputation
	case MetricLocationScore:
		return m.LocationScore
	case MetricInvestmentPotential:
		return m.InvestmentPotential
	case MetricFiveYearGrowth:
		return m.FiveYearGrowth
	case MetricLifestyleIndex:
		return m.LifestyleIndex
	case MetricValuation:
		return m.Valuation
	}
	return 0
}

// MarketTrend classifies a property's growth outlook.
type MarketTrend string

const (
	TrendRising    MarketTrend = "Rising"
	TrendStable    MarketTrend = "Stable"
	TrendDeclining MarketTrend = "Declining"
)

// RankingResult maps each metric key to the index of its winning property,
// with per-property win counts and percentages aligned to the input order.
type RankingResult struct {
	Winners       map[MetricKey]int `json:"winners"`
	WinCount      []int             `json:"winCount"`
	WinPercentage []int             `json:"winPercentage"`
}

// Winner returns the winning index for key, if any.
func (r RankingResult) Winner(key MetricKey) (int, bool) {
	idx, ok := r.Winners[key]
	return idx, ok
}

// InsightReport holds city-level analytics over a scored property list.
type InsightReport struct {
	City                 string              `json:"city"`
	TotalProperties      int                 `json:"totalProperties"`
	AveragePrice         float64             `json:"averagePrice"`
	MinPrice             float64             `json:"minPrice"`
	MaxPrice             float64             `json:"maxPrice"`
	MostExpensive        *ScoredProperty     `json:"mostExpensive,omitempty"`
	TopScored            []ScoredProperty    `json:"topScored"`
	PropertiesByLocation map[string]int      `json:"propertiesByLocation"`
	TrendBreakdown       map[MarketTrend]int `json:"trendBreakdown"`
}
