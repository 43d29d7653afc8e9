package ranking

import (
	"testing"
	"time"

	"github.com/abelbrown/discover/internal/model"
)

func named(name string, src *model.SourceDescriptor) model.DiscoveryItem {
	var it model.DiscoveryItem
	it.Name = name
	it.Source = src
	return it
}

func TestCompositeRanker(t *testing.T) {
	composite := NewComposite("test").
		Add(NewConstantRanker(0.8), 1.0).
		Add(NewConstantRanker(0.4), 1.0)

	item := model.DiscoveryItem{}
	score := composite.Score(&item, NewContext())
	// Expected: (0.8 + 0.4) / 2 = 0.6

	if score < 0.59 || score > 0.61 {
		t.Errorf("expected weighted average ~0.6, got %f", score)
	}
}

func TestCompositeRankerWeighted(t *testing.T) {
	// Weight the first ranker 3x more than second
	composite := NewComposite("test").
		Add(NewConstantRanker(1.0), 3.0).
		Add(NewConstantRanker(0.0), 1.0)

	item := model.DiscoveryItem{}
	score := composite.Score(&item, NewContext())
	// Expected: (1.0*3 + 0.0*1) / 4 = 0.75

	if score < 0.74 || score > 0.76 {
		t.Errorf("expected weighted average ~0.75, got %f", score)
	}
}

func TestEmptyComposite(t *testing.T) {
	item := model.DiscoveryItem{}
	if score := NewComposite("empty").Score(&item, NewContext()); score != 0 {
		t.Errorf("expected 0 for empty composite, got %f", score)
	}
}

func TestRankStable(t *testing.T) {
	heavy := &model.SourceDescriptor{Name: "heavy", Weight: 100}
	light := &model.SourceDescriptor{Name: "light", Weight: 0}

	items := []model.DiscoveryItem{
		named("first-light", light),
		named("heavy", heavy),
		named("second-light", light),
	}

	results := Rank(items, NewSourceWeightRanker(), NewContext())
	want := []string{"heavy", "first-light", "second-light"}
	for i, name := range want {
		if results[i].Item.Name != name {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Item.Name, name)
		}
	}
}

func TestSortModes(t *testing.T) {
	fast := &model.SourceDescriptor{Name: "fast", Weight: 100, AvgResponse: 200 * time.Millisecond}
	slow := &model.SourceDescriptor{Name: "slow", Weight: -10, AvgResponse: 9 * time.Second}

	b := named("beta", slow)
	b.Quality = 0.2
	a := named("Alpha", fast)
	a.Quality = 0.9
	a.AltSources = []string{"slow"}
	items := []model.DiscoveryItem{b, a}

	tests := []struct {
		mode  string
		first string
	}{
		{SortDefault, "beta"},
		{SortWeight, "Alpha"},
		{SortQuality, "Alpha"},
		{SortName, "Alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got := Sort(items, tt.mode, nil)
			if len(got) != 2 || got[0].Name != tt.first {
				t.Errorf("first = %q, want %q", got[0].Name, tt.first)
			}
		})
	}

	if items[0].Name != "beta" {
		t.Error("Sort must not reorder the input slice")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != SortDefault {
		t.Errorf("empty mode = %q, %v", m, err)
	}
	if m, err := ParseMode("Quality"); err != nil || m != SortQuality {
		t.Errorf("Quality = %q, %v", m, err)
	}
	if _, err := ParseMode("random"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestDiversityRanker(t *testing.T) {
	ranker := NewDiversityRanker()
	ranker.MaxPerSource = 2

	item := named("x", &model.SourceDescriptor{Name: "Shelf"})

	tests := []struct {
		placed int
		want   float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 0.7},
		{3, 0.49},
	}
	for _, tt := range tests {
		ctx := NewContext()
		ctx.SourceCounts["Shelf"] = tt.placed
		if got := ranker.Score(&item, ctx); got < tt.want-0.001 || got > tt.want+0.001 {
			t.Errorf("placed=%d: score = %f, want %f", tt.placed, got, tt.want)
		}
	}
	if got := ranker.Score(&item, nil); got != 1.0 {
		t.Errorf("nil context = %f, want 1.0", got)
	}
}

func TestRankSpreadsSources(t *testing.T) {
	a := &model.SourceDescriptor{Name: "a"}
	b := &model.SourceDescriptor{Name: "b"}
	items := []model.DiscoveryItem{named("a-1", a), named("a-2", a), named("b-1", b)}

	ranker := NewDiversityRanker()
	ranker.MaxPerSource = 1
	ctx := NewContext()
	results := Rank(items, ranker, ctx)

	want := []string{"a-1", "b-1", "a-2"}
	for i, name := range want {
		if results[i].Item.Name != name {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Item.Name, name)
		}
	}
	if ctx.SourceCounts["a"] != 2 || ctx.SourceCounts["b"] != 1 {
		t.Errorf("placements not counted: %v", ctx.SourceCounts)
	}
}

func TestQualitySortBoostsBookshelf(t *testing.T) {
	src := &model.SourceDescriptor{Name: "Shelf", Weight: 50}
	moon := named("Moon Palace", src)
	lev := named("Leviathan", src)
	lev.InBookshelf = true

	got := Sort([]model.DiscoveryItem{moon, lev}, SortQuality, nil)
	if got[0].Name != "Leviathan" {
		t.Errorf("first = %q, want the saved work", got[0].Name)
	}
}

func TestCoverageRanker(t *testing.T) {
	r := NewCoverageRanker()
	single := model.DiscoveryItem{}
	multi := model.DiscoveryItem{AltSources: []string{"a", "b", "c", "d"}}

	if s := r.Score(&single, nil); s != 0.5 {
		t.Errorf("single source = %f, want 0.5", s)
	}
	if s := r.Score(&multi, nil); s < 0.89 || s > 0.91 {
		t.Errorf("five sources = %f, want ~0.9", s)
	}
}

func TestDedupQualityFallback(t *testing.T) {
	r := NewDedupQualityRanker()
	var it model.DiscoveryItem
	it.Name = "n"
	it.CoverURL = "c"
	if s := r.Score(&it, nil); s != 0.4 {
		t.Errorf("fallback completeness = %f, want 0.4", s)
	}
}
