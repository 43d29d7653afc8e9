package ranking

import (
	"math"

	"github.com/abelbrown/discover/internal/dedup"
	"github.com/abelbrown/discover/internal/model"
)

// SourceWeightRanker scores items by their source's configured weight.
type SourceWeightRanker struct {
	// DefaultScore for items without a source
	DefaultScore float64
}

func NewSourceWeightRanker() *SourceWeightRanker {
	return &SourceWeightRanker{DefaultScore: 0.5}
}

func (r *SourceWeightRanker) Name() string { return "source_weight" }

func (r *SourceWeightRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	if item.Source == nil {
		return r.DefaultScore
	}
	return model.WeightBucket(item.Source.Weight)
}

// DedupQualityRanker uses the quality assigned during deduplication, falling
// back to field completeness for items that never went through it.
type DedupQualityRanker struct{}

func NewDedupQualityRanker() *DedupQualityRanker { return &DedupQualityRanker{} }

func (r *DedupQualityRanker) Name() string { return "quality" }

func (r *DedupQualityRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	if item.Quality > 0 {
		return math.Min(item.Quality, 1.0)
	}
	return dedup.Completeness(item.RawItem)
}

// ResponseRanker prefers items from fast sources.
type ResponseRanker struct{}

func NewResponseRanker() *ResponseRanker { return &ResponseRanker{} }

func (r *ResponseRanker) Name() string { return "response" }

func (r *ResponseRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	if item.Source == nil {
		return 0.5
	}
	return model.ResponseBucket(item.Source.AvgResponse)
}

// CoverageRanker boosts works carried by several sources.
type CoverageRanker struct{}

func NewCoverageRanker() *CoverageRanker { return &CoverageRanker{} }

func (r *CoverageRanker) Name() string { return "coverage" }

func (r *CoverageRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	size := len(item.AltSources) + 1
	if size < 2 {
		return 0.5
	}
	// Size 2 -> 0.75, Size 5 -> 0.9
	return 0.5 + 0.5*(1.0-1.0/float64(size))
}

// DiversityRanker penalizes items from sources that already filled their
// share of the page.
type DiversityRanker struct {
	// MaxPerSource items of one source are placed before the penalty starts.
	MaxPerSource int
}

func NewDiversityRanker() *DiversityRanker {
	return &DiversityRanker{MaxPerSource: 3}
}

func (r *DiversityRanker) Name() string { return "diversity" }

func (r *DiversityRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	if ctx == nil || ctx.SourceCounts == nil {
		return 1.0
	}
	placed := ctx.SourceCounts[item.SourceName()]
	if placed < r.MaxPerSource {
		return 1.0
	}
	// 0.7 for the first item over the share, then geometric.
	return math.Pow(0.7, float64(placed-r.MaxPerSource+1))
}

// BookshelfRanker nudges works the user already saved toward the top.
type BookshelfRanker struct {
	Boost float64
}

func NewBookshelfRanker() *BookshelfRanker { return &BookshelfRanker{Boost: 1.0} }

func (r *BookshelfRanker) Name() string { return "bookshelf" }

func (r *BookshelfRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	if item.InBookshelf {
		return r.Boost
	}
	return 0.5
}

// ConstantRanker always returns the same score (useful for testing/baseline)
type ConstantRanker struct {
	score float64
}

func NewConstantRanker(score float64) *ConstantRanker {
	return &ConstantRanker{score: score}
}

func (r *ConstantRanker) Name() string { return "constant" }

func (r *ConstantRanker) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	return r.score
}

// QualityRanker is the composite behind the quality sort mode.
func QualityRanker() Ranker {
	return NewComposite("quality").
		Add(NewDedupQualityRanker(), 3.0). // Representative quality dominates
		Add(NewCoverageRanker(), 1.5).     // Widely carried works
		Add(NewResponseRanker(), 1.0).
		Add(NewDiversityRanker(), 1.0).
		Add(NewBookshelfRanker(), 0.5)
}
