package models

// MetricKey names one comparable quality dimension.
type MetricKey string

const (
	MetricOverallScore        MetricKey = "overallScore"
	MetricBuilderReputation   MetricKey = "builderReputation"
	MetricLocationScore       MetricKey = "locationScore"
	MetricInvestmentPotential MetricKey = "investmentPotential"
	MetricFiveYearGrowth      MetricKey = "fiveYearGrowth"
	MetricLifestyleIndex      MetricKey = "lifestyleIndex"
	MetricValuation           MetricKey = "valuation"
)

// Metric describes how a metric is displayed and compared.
type Metric struct {
	Key            MetricKey `json:"key"`
	Label          string    `json:"label"`
	HigherIsBetter bool      `json:"higherIsBetter"`
}

var registry = [...]Metric{
	{Key: MetricOverallScore, Label: "Overall Score", HigherIsBetter: true},
	{Key: MetricBuilderReputation, Label: "Builder Reputation", HigherIsBetter: true},
	{Key: MetricLocationScore, Label: "Location Score", HigherIsBetter: true},
	{Key: MetricInvestmentPotential, Label: "Investment Potential", HigherIsBetter: true},
	{Key: MetricFiveYearGrowth, Label: "5-Year Growth", HigherIsBetter: true},
	{Key: MetricLifestyleIndex, Label: "Lifestyle Index", HigherIsBetter: true},
	{Key: MetricValuation, Label: "Valuation Score", HigherIsBetter: true},
}

// Metrics returns the ordered metric registry. The returned slice is a copy.
func Metrics() []Metric {
	out := make([]Metric, len(registry))
	copy(out, registry[:])
	return out
}

// LookupMetric returns the registry entry for key.
func LookupMetric(key MetricKey) (Metric, bool) {
	for _, m := range registry {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}
