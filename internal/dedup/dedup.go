// Package dedup clusters near-duplicate discovery items from different
// sources and keeps the best representative of each cluster.
//
// Grouping is a greedy O(n²) pass: each ungrouped item opens a group and
// pulls in every later ungrouped item whose composite similarity reaches
// the threshold. Similarity compares normalized titles, authors and
// descriptions by edit distance.
package dedup

import (
	"time"

	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
)

// Similarity thresholds.
const (
	HighThreshold   = 0.90
	MediumThreshold = 0.80
	LowThreshold    = 0.60
)

// Similarity component weights.
const (
	titleWeight  = 0.6
	authorWeight = 0.3
	introWeight  = 0.1
)

// introCompareLen caps how much of a description is compared.
const introCompareLen = 200

// Group is one cluster of similar items. Members are indexes into the
// input slice in first-seen order; Best indexes into Members.
type Group struct {
	Members []int
	Best    int
}

// Deduplicator groups similar items. Safe for concurrent use.
type Deduplicator struct {
	threshold float64
	weights   QualityWeights
	now       func() time.Time
}

// New creates a Deduplicator. A threshold <= 0 uses MediumThreshold.
func New(threshold float64) *Deduplicator {
	if threshold <= 0 {
		threshold = MediumThreshold
	}
	return &Deduplicator{
		threshold: threshold,
		weights:   DefaultQualityWeights(),
		now:       time.Now,
	}
}

// WithClock returns a copy using now for recency buckets.
func (d *Deduplicator) WithClock(now func() time.Time) *Deduplicator {
	cp := *d
	cp.now = now
	return &cp
}

// Similarity returns the composite similarity of two items in [0,1].
func Similarity(a, b model.RawItem) float64 {
	s := titleWeight*stringSimilarity(NormalizeTitle(a.Name), NormalizeTitle(b.Name)) +
		authorWeight*stringSimilarity(NormalizeAuthor(a.Author), NormalizeAuthor(b.Author))
	ia, ib := NormalizeText(a.Intro), NormalizeText(b.Intro)
	if ia != "" && ib != "" {
		s += introWeight * stringSimilarity(truncateRunes(ia, introCompareLen), truncateRunes(ib, introCompareLen))
	}
	return s
}

// Groups partitions items into duplicate groups. Every input index appears
// in exactly one group.
func (d *Deduplicator) Groups(items []model.DiscoveryItem) []Group {
	n := len(items)
	grouped := make([]bool, n)
	var groups []Group

	for i := 0; i < n; i++ {
		if grouped[i] {
			continue
		}
		grouped[i] = true
		g := Group{Members: []int{i}}
		for j := i + 1; j < n; j++ {
			if grouped[j] {
				continue
			}
			if Similarity(items[i].RawItem, items[j].RawItem) >= d.threshold {
				grouped[j] = true
				g.Members = append(g.Members, j)
			}
		}
		g.Best = d.pickBest(items, g.Members)
		groups = append(groups, g)
	}
	return groups
}

// pickBest returns the position in members of the highest quality item.
// Ties keep the first seen.
func (d *Deduplicator) pickBest(items []model.DiscoveryItem, members []int) int {
	now := d.now()
	best, bestScore := 0, -1.0
	for pos, idx := range members {
		if q := d.weights.Score(items[idx], now); q > bestScore {
			best, bestScore = pos, q
		}
	}
	return best
}

// Dedupe returns one representative per duplicate group, in the order each
// group was first seen. Representatives carry their quality score and the
// names of the other sources in their group. On any internal failure the
// input is returned unchanged.
func (d *Deduplicator) Dedupe(items []model.DiscoveryItem) (out []model.DiscoveryItem) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("dedup: recovered", "error", r, "items", len(items))
			out = items
		}
	}()

	if len(items) < 2 {
		return items
	}

	now := d.now()
	groups := d.Groups(items)
	out = make([]model.DiscoveryItem, 0, len(groups))
	for _, g := range groups {
		rep := items[g.Members[g.Best]]
		rep.Quality = d.weights.Score(rep, now)
		rep.AltSources = nil
		for pos, idx := range g.Members {
			if pos == g.Best {
				continue
			}
			if name := items[idx].SourceName(); name != "" && name != rep.SourceName() {
				rep.AltSources = appendUnique(rep.AltSources, name)
			}
		}
		out = append(out, rep)
	}

	if removed := len(items) - len(out); removed > 0 {
		logging.Debug("dedup: merged duplicates", "in", len(items), "out", len(out))
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
