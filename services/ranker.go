package services

import (
	"math"

	"property-comparator/models"
)

// RankAll finds, for every metric, the index of the best property in props.
// A later property only takes the lead when it is strictly better, so ties
// keep the earliest index. An empty props yields no winners.
func RankAll(props []models.ScoredProperty, metrics []models.Metric) models.RankingResult {
	result := models.RankingResult{
		Winners:       make(map[models.MetricKey]int, len(metrics)),
		WinCount:      make([]int, len(props)),
		WinPercentage: make([]int, len(props)),
	}
	if len(props) == 0 {
		return result
	}

	for _, m := range metrics {
		best := 0
		bestValue := props[0].Value(m.Key)
		for i := 1; i < len(props); i++ {
			v := props[i].Value(m.Key)
			if (m.HigherIsBetter && v > bestValue) || (!m.HigherIsBetter && v < bestValue) {
				best, bestValue = i, v
			}
		}
		result.Winners[m.Key] = best
		result.WinCount[best]++
	}

	if len(metrics) > 0 {
		for i, wins := range result.WinCount {
			result.WinPercentage[i] = int(math.Floor(float64(wins)*100/float64(len(metrics)) + 0.5))
		}
	}
	return result
}
