package services

import "property-comparator/models"

// Score computes the composite overall score of a property:
// the mean of builder reputation, location score, investment potential and
// a tenth of five-year growth, rounded to one decimal place. The result is
// not clamped.
func Score(p models.ComparableProperty) float64 {
	m := p.Metrics
	sum := m.BuilderReputation + m.LocationScore + m.InvestmentPotential + m.FiveYearGrowth/10
	return round1(sum / 4)
}

// Profile synthesizes the amenities sub-scores from whichever raw signal is
// available. It feeds visualization only and never affects ranking.
func Profile(p models.ComparableProperty) models.AmenitiesProfile {
	a := p.Amenities
	count := a.AmenitiesCount

	security := orDefault(a.SecurityScore, orDefault(count*0.5, 5))

	parking := orDefault(count*0.4, 5)
	if a.ParkingCount != 0 {
		parking = a.ParkingCount * 2
	}

	recreation := orDefault(a.RecreationScore, orDefault(count*0.3, 5))
	convenience := orDefault(a.ConvenienceScore, orDefault(p.Metrics.LifestyleIndex, 5))

	green := orDefault(count*0.2, 4)
	if a.GreenCover != 0 {
		green = a.GreenCover / 5
	}

	return models.AmenitiesProfile{
		Security:    clampScore(security),
		Parking:     clampScore(parking),
		Recreation:  clampScore(recreation),
		Convenience: clampScore(convenience),
		GreenSpace:  clampScore(green),
	}
}

// ScoreProperty attaches the overall score and amenities profile.
func ScoreProperty(p models.ComparableProperty) models.ScoredProperty {
	return models.ScoredProperty{
		ComparableProperty: p,
		OverallScore:       Score(p),
		AmenitiesProfile:   Profile(p),
	}
}

// ScoreAll scores every property, preserving order.
func ScoreAll(props []models.ComparableProperty) []models.ScoredProperty {
	out := make([]models.ScoredProperty, len(props))
	for i, p := range props {
		out[i] = ScoreProperty(p)
	}
	return out
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return round1(v)
}
