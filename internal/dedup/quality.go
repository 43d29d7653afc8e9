package dedup

import (
	"time"
	"unicode/utf8"

	"github.com/abelbrown/discover/internal/model"
)

// minIntroLen is the description length that counts as "present".
const minIntroLen = 20

// QualityWeights weight the components of a representative's quality score.
type QualityWeights struct {
	Weight       float64
	Response     float64
	Completeness float64
	Recency      float64
	CustomOrder  float64
}

// DefaultQualityWeights sum to 1.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		Weight:       0.25,
		Response:     0.20,
		Completeness: 0.30,
		Recency:      0.15,
		CustomOrder:  0.10,
	}
}

// Score computes the quality of an item as a group representative.
func (w QualityWeights) Score(item model.DiscoveryItem, now time.Time) float64 {
	score := w.Completeness * Completeness(item.RawItem)
	if src := item.Source; src != nil {
		score += w.Weight * model.WeightBucket(src.Weight)
		score += w.Response * model.ResponseBucket(src.AvgResponse)
		score += w.Recency * model.RecencyBucket(src.LastUpdate, now)
		score += w.CustomOrder * customOrderBucket(src.CustomOrder)
	}
	return score
}

// Completeness is the fraction of optional fields an item fills in.
func Completeness(item model.RawItem) float64 {
	present := 0
	if item.Name != "" {
		present++
	}
	if item.Author != "" {
		present++
	}
	if utf8.RuneCountInString(item.Intro) >= minIntroLen {
		present++
	}
	if item.CoverURL != "" {
		present++
	}
	if item.LatestChapter != "" {
		present++
	}
	return float64(present) / 5
}

// customOrderBucket prefers sources the user ordered first (lower is better).
func customOrderBucket(order int) float64 {
	switch {
	case order <= 0:
		return 1.0
	case order >= 100:
		return 0
	default:
		return 1.0 - float64(order)/100
	}
}
