// Package classify assigns a content category to discovered items.
//
// Classification is a chain of resolvers evaluated in priority order; the
// first resolver that returns a result wins. The chain is:
//
//  1. the source's manual category override
//  2. the platform table (known platform tokens in the source name/URL)
//  3. content scoring reconciled with the source's declared type or hint
//
// Given identical inputs the result is always identical.
package classify

import (
	"strings"

	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
)

// Config holds the tuned scoring constants. They are empirical; keep them
// overridable rather than re-deriving them.
type Config struct {
	// Minimum keyword score for a category to be chosen without a hint.
	MinScore float64 `json:"min_score" yaml:"min_score"`
	// Score another category must reach to overrule a source-type hint.
	StrongConflict float64 `json:"strong_conflict" yaml:"strong_conflict"`
	// Drama score required before episode/duration patterns count.
	VideoSignalThreshold float64 `json:"video_signal_threshold" yaml:"video_signal_threshold"`

	ManualScore     float64 `json:"manual_score" yaml:"manual_score"`
	PlatformScore   float64 `json:"platform_score" yaml:"platform_score"`
	HintBonus       float64 `json:"hint_bonus" yaml:"hint_bonus"`
	ExtensionScore  float64 `json:"extension_score" yaml:"extension_score"`
	EpisodeScore    float64 `json:"episode_score" yaml:"episode_score"`
	NegativePenalty float64 `json:"negative_penalty" yaml:"negative_penalty"`

	// Field weights.
	TitleWeight  float64 `json:"title_weight" yaml:"title_weight"`
	KindWeight   float64 `json:"kind_weight" yaml:"kind_weight"`
	IntroWeight  float64 `json:"intro_weight" yaml:"intro_weight"`
	SourceWeight float64 `json:"source_weight" yaml:"source_weight"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:             5,
		StrongConflict:       20,
		VideoSignalThreshold: 6,
		ManualScore:          100,
		PlatformScore:        50,
		HintBonus:            10,
		ExtensionScore:       8,
		EpisodeScore:         5,
		NegativePenalty:      4,
		TitleWeight:          3.0,
		KindWeight:           2.0,
		IntroWeight:          1.0,
		SourceWeight:         0.5,
	}
}

// ConflictFunc is called when content scoring overrules a source-type hint.
type ConflictFunc func(item model.RawItem, src *model.SourceDescriptor, hint, got model.Category, score float64)

// Classifier is stateless apart from its configuration and is safe for
// concurrent use.
type Classifier struct {
	cfg        Config
	onConflict ConflictFunc
	resolvers  []resolver
}

// input carries the lowercased fields shared by every resolver.
type input struct {
	item  model.RawItem
	src   *model.SourceDescriptor
	title string
	kind  string
	intro string
	sname string
	urls  string
}

// resolver returns ok=false to pass to the next resolver in the chain.
type resolver func(in *input) (cat model.Category, score float64, ok bool)

// New creates a Classifier. A nil onConflict disables the callback; the
// conflict is still logged.
func New(cfg Config, onConflict ConflictFunc) *Classifier {
	c := &Classifier{cfg: cfg, onConflict: onConflict}
	c.resolvers = []resolver{
		c.manualOverride,
		c.platformOverride,
		c.contentDecision,
	}
	return c
}

// Classify returns the item's category and score. It never panics; any
// internal failure yields (Text, 0).
func (c *Classifier) Classify(item model.RawItem, src *model.SourceDescriptor) (cat model.Category, score float64) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("classify: recovered", "error", r, "item", item.Name)
			cat, score = model.Text, 0
		}
	}()

	in := &input{
		item:  item,
		src:   src,
		title: strings.ToLower(item.Name),
		kind:  strings.ToLower(item.Kind),
		intro: strings.ToLower(item.Intro),
		urls:  strings.ToLower(item.OriginURL + " " + item.TocURL),
	}
	if src != nil {
		in.sname = strings.ToLower(src.NameAndURL())
	}

	for _, r := range c.resolvers {
		if cat, score, ok := r(in); ok {
			return cat, score
		}
	}
	return model.Text, 0
}

// ClassifyItem wraps Classify into a ClassifiedItem value.
func (c *Classifier) ClassifyItem(item model.RawItem, src *model.SourceDescriptor) model.ClassifiedItem {
	cat, score := c.Classify(item, src)
	return model.ClassifiedItem{RawItem: item, Category: cat, Score: score}
}

// Safe is the category assigned to items that bypass classification.
func Safe(item model.RawItem) model.ClassifiedItem {
	return model.ClassifiedItem{RawItem: item, Category: model.Text}
}

func (c *Classifier) manualOverride(in *input) (model.Category, float64, bool) {
	if in.src != nil && in.src.ManualCategory.Assignable() {
		return in.src.ManualCategory, c.cfg.ManualScore, true
	}
	return "", 0, false
}

func (c *Classifier) platformOverride(in *input) (model.Category, float64, bool) {
	if in.sname == "" {
		return "", 0, false
	}
	for _, p := range platformTokens {
		if strings.Contains(in.sname, p.token) {
			return p.category, c.cfg.PlatformScore, true
		}
	}
	return "", 0, false
}

// contentDecision always resolves.
func (c *Classifier) contentDecision(in *input) (model.Category, float64, bool) {
	scores := c.scores(in)

	hint, hasHint := sourceHint(in.src)
	if hasHint {
		best, bestScore := argmax(scores, hint)
		if bestScore >= c.cfg.StrongConflict && bestScore > scores[hint] {
			logging.Debug("classify: content overrides source hint",
				"item", in.item.Name, "hint", hint, "category", best, "score", bestScore)
			if c.onConflict != nil {
				c.onConflict(in.item, in.src, hint, best, bestScore)
			}
			return best, bestScore, true
		}
		return hint, scores[hint] + c.cfg.HintBonus, true
	}

	best, bestScore := argmax(scores, "")
	if bestScore >= c.cfg.MinScore {
		return best, bestScore, true
	}
	return model.Text, scores[model.Text], true
}

// sourceHint returns the declared media type, falling back to the detected
// category. Text is the default and never counts as a hint.
func sourceHint(src *model.SourceDescriptor) (model.Category, bool) {
	if src == nil {
		return "", false
	}
	if cat, ok := src.Type.Category(); ok {
		return cat, true
	}
	if src.DetectedCategory.Assignable() && src.DetectedCategory != model.Text {
		return src.DetectedCategory, true
	}
	return "", false
}

// argmax returns the highest-scoring category other than skip. Ties go to
// the earlier category in model.Categories.
func argmax(scores map[model.Category]float64, skip model.Category) (model.Category, float64) {
	best, bestScore := model.Text, -1.0
	for _, cat := range model.Categories {
		if cat == skip {
			continue
		}
		if s := scores[cat]; s > bestScore {
			best, bestScore = cat, s
		}
	}
	return best, bestScore
}

// scores computes the weighted keyword score for every category.
func (c *Classifier) scores(in *input) map[model.Category]float64 {
	scores := make(map[model.Category]float64, len(model.Categories))
	fields := []struct {
		text   string
		weight float64
	}{
		{in.title, c.cfg.TitleWeight},
		{in.kind, c.cfg.KindWeight},
		{in.intro, c.cfg.IntroWeight},
		{in.sname, c.cfg.SourceWeight},
	}

	for _, cat := range model.Categories {
		for _, m := range compiledKeywords[cat] {
			for _, f := range fields {
				if f.text != "" && m.match(f.text) {
					scores[cat] += m.score * f.weight
				}
			}
		}
	}

	if audioExtRe.MatchString(in.urls) {
		scores[model.Audio] += c.cfg.ExtensionScore
	}
	if videoExtRe.MatchString(in.urls) {
		scores[model.Drama] += c.cfg.ExtensionScore
	}

	if scores[model.Drama] >= c.cfg.VideoSignalThreshold {
		text := in.item.Name + " " + in.item.Kind + " " + in.item.Intro
		for _, re := range episodePatterns {
			if re.MatchString(text) {
				scores[model.Drama] += c.cfg.EpisodeScore
			}
		}
	}

	for _, m := range compiledNegatives {
		for _, f := range fields[:3] {
			if f.text != "" && m.match(f.text) {
				scores[model.Drama] -= c.cfg.NegativePenalty * f.weight
			}
		}
	}
	if scores[model.Drama] < 0 {
		scores[model.Drama] = 0
	}

	return scores
}
