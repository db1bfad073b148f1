package services

import "property-comparator/models"

// DedupeByLocation keeps one property per location: the one with the
// strictly greatest overall score, or the first encountered on a tie.
// Surviving entries keep the order in which their location first appeared.
func DedupeByLocation(props []models.ScoredProperty) []models.ScoredProperty {
	index := make(map[string]int, len(props))
	out := make([]models.ScoredProperty, 0, len(props))

	for _, p := range props {
		if i, ok := index[p.Location]; ok {
			if p.OverallScore > out[i].OverallScore {
				out[i] = p
			}
			continue
		}
		index[p.Location] = len(out)
		out = append(out, p)
	}
	return out
}
