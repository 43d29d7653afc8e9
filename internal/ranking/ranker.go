// Package ranking orders a page of discovery items for display.
//
// A Ranker scores one item in [0,1]; Composite blends several. Sort applies
// one of the named sort modes to a page.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelbrown/discover/internal/model"
)

// Ranker scores an item. Higher is better.
type Ranker interface {
	Name() string
	Score(item *model.DiscoveryItem, ctx *Context) float64
}

// Context carries page-level state some rankers need.
type Context struct {
	Now time.Time

	// SourceCounts is how many items of each source Rank has placed so far.
	SourceCounts map[string]int
}

// NewContext returns a context for the current time.
func NewContext() *Context {
	return &Context{Now: time.Now(), SourceCounts: make(map[string]int)}
}

type weighted struct {
	ranker Ranker
	weight float64
}

// Composite is the weighted average of its parts.
type Composite struct {
	name  string
	parts []weighted
}

// NewComposite creates an empty composite ranker.
func NewComposite(name string) *Composite {
	return &Composite{name: name}
}

// Add appends a ranker with the given weight and returns c for chaining.
func (c *Composite) Add(r Ranker, weight float64) *Composite {
	c.parts = append(c.parts, weighted{r, weight})
	return c
}

func (c *Composite) Name() string { return c.name }

func (c *Composite) Score(item *model.DiscoveryItem, ctx *Context) float64 {
	var sum, total float64
	for _, p := range c.parts {
		sum += p.ranker.Score(item, ctx) * p.weight
		total += p.weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// Result pairs an item with its score.
type Result struct {
	Item  model.DiscoveryItem
	Score float64
}

// Rank places items best first, one at a time. Each item is scored against
// what has been placed so far (ctx.SourceCounts counts placements per
// source), so context-aware rankers see the page as it fills. Equal scores
// keep input order.
func Rank(items []model.DiscoveryItem, r Ranker, ctx *Context) []Result {
	if ctx == nil {
		ctx = NewContext()
	}
	if ctx.SourceCounts == nil {
		ctx.SourceCounts = make(map[string]int)
	}

	remaining := make([]int, len(items))
	for i := range remaining {
		remaining[i] = i
	}
	results := make([]Result, 0, len(items))
	for len(remaining) > 0 {
		best, bestScore := 0, math.Inf(-1)
		for k, idx := range remaining {
			if s := r.Score(&items[idx], ctx); s > bestScore {
				best, bestScore = k, s
			}
		}
		item := items[remaining[best]]
		results = append(results, Result{Item: item, Score: bestScore})
		ctx.SourceCounts[item.SourceName()]++
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return results
}

// Sort modes.
const (
	SortDefault = "default"
	SortWeight  = "weight"
	SortQuality = "quality"
	SortName    = "name"
)

// Modes lists the accepted sort modes.
var Modes = []string{SortDefault, SortWeight, SortQuality, SortName}

// ParseMode validates a sort mode; empty means default.
func ParseMode(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SortDefault, nil
	}
	for _, m := range Modes {
		if s == m {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown sort mode %q (want one of %s)", s, strings.Join(Modes, ", "))
}

// Sort orders a page by mode. The default mode keeps the incoming order,
// which is already interleaved across sources.
func Sort(items []model.DiscoveryItem, mode string, ctx *Context) []model.DiscoveryItem {
	if ctx == nil {
		ctx = NewContext()
	}
	var r Ranker
	switch mode {
	case SortWeight:
		r = NewSourceWeightRanker()
	case SortQuality:
		r = QualityRanker()
	case SortName:
		out := append([]model.DiscoveryItem(nil), items...)
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
		return out
	default:
		return items
	}

	results := Rank(items, r, ctx)
	out := make([]model.DiscoveryItem, len(results))
	for i, res := range results {
		out[i] = res.Item
	}
	return out
}
