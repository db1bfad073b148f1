package services

import (
	"math"
	"strings"
	"unicode"

	"property-comparator/models"
	"property-comparator/utils"
)

// Raw field names as stored by the property backend.
const (
	FieldLocation            = "location"
	FieldCity                = "city"
	FieldDeveloperName       = "developer_name"
	FieldBuilderGrade        = "builder_grade"
	FieldLifestyleIndex      = "lifestyle_quality_index"
	FieldInvestmentPotential = "investment_potential"
	FieldGrowthPrediction    = "future_growth_prediction"
	FieldPrice               = "price_value"
	FieldArea                = "area"
	FieldBedrooms            = "bedrooms"
	FieldRateSqft            = "rate_sqft"
	FieldRentalYield         = "rental_yield"
	FieldNeighbourhoodIncome = "neighbourhood_avg_income"
	FieldAmenitiesCount      = "amenities_count"
	FieldParkingCount        = "parking_count"
	FieldGreenCover          = "green_cover"
	FieldSecurityScore       = "security_score"
	FieldRecreationScore     = "recreation_score"
	FieldConvenienceScore    = "convenience_score"
)

const (
	UnknownLocation = "Unknown Location"
	UnknownCity     = "City Not Available"
)

// sourceFields maps each source metric to the raw field it is read from.
// Location score and lifestyle index share a source, as do investment
// potential and valuation.
var sourceFields = map[models.MetricKey]string{
	models.MetricBuilderReputation:   FieldBuilderGrade,
	models.MetricLocationScore:       FieldLifestyleIndex,
	models.MetricInvestmentPotential: FieldInvestmentPotential,
	models.MetricFiveYearGrowth:      FieldGrowthPrediction,
	models.MetricLifestyleIndex:      FieldLifestyleIndex,
	models.MetricValuation:           FieldInvestmentPotential,
}

// Normalizer turns raw property records into ComparableProperty values.
// Malformed fields are defaulted, never rejected.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize maps a single raw record into its canonical form.
func (n *Normalizer) Normalize(raw models.RawPropertyRecord) models.ComparableProperty {
	location := normaliseText(raw.String(FieldLocation))
	if location == "" {
		location = UnknownLocation
	}
	city := normaliseText(raw.String(FieldCity))
	if city == "" {
		city = UnknownCity
	}
	developer := normaliseText(raw.String(FieldDeveloperName))

	p := models.ComparableProperty{
		ID:            raw.Identifier(),
		Name:          displayName(developer, location),
		Location:      location,
		City:          city,
		DeveloperName: developer,
		Price:         n.number(raw, FieldPrice),
		Area:          n.number(raw, FieldArea),
		Bedrooms:      n.number(raw, FieldBedrooms),
		RatePerSqft:   n.number(raw, FieldRateSqft),
		RentalYield:   n.number(raw, FieldRentalYield),
		Metrics: models.MetricValues{
			BuilderReputation:   n.number(raw, sourceFields[models.MetricBuilderReputation]),
			LocationScore:       n.number(raw, sourceFields[models.MetricLocationScore]),
			InvestmentPotential: n.number(raw, sourceFields[models.MetricInvestmentPotential]),
			FiveYearGrowth:      n.number(raw, sourceFields[models.MetricFiveYearGrowth]),
			LifestyleIndex:      n.number(raw, sourceFields[models.MetricLifestyleIndex]),
			Valuation:           n.number(raw, sourceFields[models.MetricValuation]),
		},
		Amenities: models.AmenitySignals{
			AmenitiesCount:   n.number(raw, FieldAmenitiesCount),
			ParkingCount:     n.number(raw, FieldParkingCount),
			GreenCover:       n.number(raw, FieldGreenCover),
			SecurityScore:    n.number(raw, FieldSecurityScore),
			RecreationScore:  n.number(raw, FieldRecreationScore),
			ConvenienceScore: n.number(raw, FieldConvenienceScore),
		},
	}
	p.MarketTrend = marketTrend(p.Metrics.FiveYearGrowth)
	p.NeighbourhoodClass = neighbourhoodClass(n.number(raw, FieldNeighbourhoodIncome))
	return p
}

// NormalizeAll normalizes every record and drops records whose id was
// already seen; the first occurrence wins.
func (n *Normalizer) NormalizeAll(raws []models.RawPropertyRecord) []models.ComparableProperty {
	seen := make(map[string]struct{}, len(raws))
	result := make([]models.ComparableProperty, 0, len(raws))

	for _, raw := range raws {
		p := n.Normalize(raw)
		if _, dup := seen[p.ID]; dup {
			n.logger.Debug("[normalizer] Duplicate id skipped: %s", p.ID)
			continue
		}
		seen[p.ID] = struct{}{}
		result = append(result, p)
	}

	n.logger.Debug("[normalizer] Normalized %d → %d properties (dropped %d duplicate ids)",
		len(raws), len(result), len(raws)-len(result))
	return result
}

// number reads a raw field as a finite number rounded to one decimal place.
// Missing, null, NaN, and unparseable values become 0.
func (n *Normalizer) number(raw models.RawPropertyRecord, field string) float64 {
	f, ok := raw.Float(field)
	if !ok {
		if v, present := raw[field]; present && v != nil {
			n.logger.Debug("[normalizer] Field %s has non-numeric value %v, using 0", field, v)
		}
		return 0
	}
	return round1(f)
}

func displayName(developer, location string) string {
	if developer != "" && developer != "Unknown" {
		return developer + " - " + location
	}
	return location + " Property"
}

func marketTrend(growth float64) models.MarketTrend {
	switch {
	case growth > 80:
		return models.TrendRising
	case growth > 60:
		return models.TrendStable
	default:
		return models.TrendDeclining
	}
}

func neighbourhoodClass(avgIncome float64) string {
	switch {
	case avgIncome > 100000:
		return "Premium"
	case avgIncome > 50000:
		return "Upper Middle"
	default:
		return "Middle"
	}
}

// round1 rounds half-up to one decimal place. Non-finite input becomes 0.
func round1(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	scaled := x * 10
	if math.IsInf(scaled, 0) {
		return x
	}
	return math.Floor(scaled+0.5) / 10
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
