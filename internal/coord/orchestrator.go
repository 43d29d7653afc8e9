// Package coord runs page loads: it picks sources, fans out to them, pushes
// every item through classification, filtering and dedup, and serves and
// fills the result cache.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/abelbrown/discover/internal/cache"
	"github.com/abelbrown/discover/internal/classify"
	"github.com/abelbrown/discover/internal/dedup"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
	"github.com/abelbrown/discover/internal/ranking"
	"github.com/abelbrown/discover/internal/sampling"
	"github.com/abelbrown/discover/internal/selection"
)

// ErrThrottled is returned when loads arrive faster than the current
// profile's minimum interval.
var ErrThrottled = errors.New("coord: load throttled")

// ErrOffline is returned when the profile allows no network loads and no
// snapshot exists.
var ErrOffline = errors.New("coord: offline")

// SourceClient turns a source and page into raw items.
type SourceClient interface {
	Explore(ctx context.Context, src model.SourceDescriptor, exploreURL string, page int) ([]model.RawItem, error)
}

// Bookshelf answers whether the user already saved a work.
type Bookshelf interface {
	Contains(name, author string) bool
}

// Page is one loaded page of results.
type Page struct {
	Items   []model.DiscoveryItem
	HasMore bool
	Cached  bool
	// Stale is set when Items came from the category snapshot because no
	// source could be queried.
	Stale bool
}

// Options wire an Orchestrator. Client, Selector and Cache are required.
type Options struct {
	Client     SourceClient
	Selector   *selection.Selector
	Cache      *cache.Store
	Classifier *classify.Classifier
	Restricted *filter.Restricted
	Dedup      *dedup.Deduplicator
	Sampler    sampling.Sampler
	Bookshelf  Bookshelf
	Events     *otel.Logger
	Sort       string
	Now        func() time.Time
}

// Orchestrator composes the pipeline. Safe for concurrent use.
type Orchestrator struct {
	client     SourceClient
	sel        *selection.Selector
	cache      *cache.Store
	classifier *classify.Classifier
	restricted *filter.Restricted
	dedup      *dedup.Deduplicator
	sampler    sampling.Sampler
	bookshelf  Bookshelf
	events     *otel.Logger
	sort       string
	now        func() time.Time

	flight singleflight.Group

	mu       sync.Mutex
	debounce *rate.Limiter

	sweeper *sweeper
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Client == nil || opts.Selector == nil || opts.Cache == nil {
		return nil, errors.New("coord: client, selector and cache are required")
	}
	mode, err := ranking.ParseMode(opts.Sort)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		client:     opts.Client,
		sel:        opts.Selector,
		cache:      opts.Cache,
		classifier: opts.Classifier,
		restricted: opts.Restricted,
		dedup:      opts.Dedup,
		sampler:    opts.Sampler,
		bookshelf:  opts.Bookshelf,
		events:     opts.Events,
		sort:       mode,
		now:        opts.Now,
		debounce:   rate.NewLimiter(rate.Inf, 1),
	}
	if o.classifier == nil {
		o.classifier = classify.New(classify.DefaultConfig(), o.onConflict)
	}
	if o.restricted == nil {
		o.restricted = filter.DefaultRestricted(false, 0)
	}
	if o.dedup == nil {
		o.dedup = dedup.New(dedup.MediumThreshold)
	}
	if o.sampler == nil {
		o.sampler = sampling.NewRoundRobinSampler()
	}
	return o, nil
}

// ConflictHandler returns a classify.ConflictFunc that records conflicts as
// events, for callers that build their own Classifier.
func ConflictHandler(events *otel.Logger) classify.ConflictFunc {
	return func(item model.RawItem, src *model.SourceDescriptor, hint, got model.Category, score float64) {
		ev := otel.Event{
			Level: otel.LevelDebug,
			Kind:  otel.KindClassifyConflict,
			Comp:  "classify",
			Msg:   item.Name,
			Extra: map[string]any{"hint": hint, "got": got, "score": score},
		}
		if src != nil {
			ev.Source = src.Name
		}
		events.Emit(ev)
	}
}

func (o *Orchestrator) onConflict(item model.RawItem, src *model.SourceDescriptor, hint, got model.Category, score float64) {
	ConflictHandler(o.events)(item, src, hint, got, score)
}

// LoadPage returns page of cat. A cache hit never touches the network.
// Loads that miss the cache are debounced by the profile's minimum
// interval and return ErrThrottled when too close together. Identical
// concurrent loads share one fetch. Cancelling ctx stops waiting for the
// result but does not interrupt fetches already in flight.
func (o *Orchestrator) LoadPage(ctx context.Context, cat model.Category, page int) (Page, error) {
	return o.load(ctx, cat, page, false)
}

// Refresh drops cat's cached pages and reloads page 1, ignoring the
// debounce.
func (o *Orchestrator) Refresh(ctx context.Context, cat model.Category) (Page, error) {
	if !cat.Valid() {
		return Page{}, fmt.Errorf("coord: invalid category %q", cat)
	}
	o.ClearCacheForCategory(cat)
	return o.load(ctx, cat, 1, true)
}

func (o *Orchestrator) load(ctx context.Context, cat model.Category, page int, force bool) (Page, error) {
	if !cat.Valid() {
		return Page{}, fmt.Errorf("coord: invalid category %q", cat)
	}
	if page < 1 {
		page = 1
	}

	profile := o.sel.CurrentProfile()
	sources := o.sel.PickSources(page, cat, profile)
	if len(sources) == 0 {
		return o.fallback(cat, page, profile)
	}

	key := o.cacheKey(cat, page, sources)
	if items, ok := o.cache.Get(key); ok {
		o.events.Emit(otel.Event{Kind: otel.KindCacheHit, Comp: "coord", Category: string(cat), Page: page, Key: key, Count: len(items)})
		items = o.annotate(items)
		return Page{Items: items, HasMore: len(items) > 0, Cached: true}, nil
	}
	o.events.Emit(otel.Event{Kind: otel.KindCacheMiss, Comp: "coord", Category: string(cat), Page: page, Key: key})

	// Callers asking for a key already in flight join it; only the
	// leader is subject to the debounce.
	ch := o.flight.DoChan(key, func() (any, error) {
		if items, ok := o.cache.Get(key); ok {
			return Page{Items: items, HasMore: len(items) > 0, Cached: true}, nil
		}
		if !force && !o.allow(profile.MinInterval) {
			o.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindLoadThrottled, Comp: "coord", Category: string(cat), Page: page})
			return Page{}, ErrThrottled
		}
		return o.fetchPage(context.WithoutCancel(ctx), cat, page, key, sources, profile), nil
	})

	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		p := res.Val.(Page)
		p.Items = o.annotate(cloneItems(p.Items))
		return p, nil
	}
}

// fallback serves page 1 from the category snapshot when no source can be
// queried.
func (o *Orchestrator) fallback(cat model.Category, page int, profile selection.Profile) (Page, error) {
	if page == 1 {
		items, ok := o.cache.Snapshot(cat)
		if !ok && cat != model.All {
			// The aggregate page may still hold items of cat.
			if all, found := o.cache.Snapshot(model.All); found {
				items = filter.ByCategory(all, cat)
				ok = len(items) > 0
			}
		}
		if ok {
			items = o.annotate(items)
			return Page{Items: items, Cached: true, Stale: true}, nil
		}
	}
	if profile.Offline() {
		return Page{}, ErrOffline
	}
	return Page{}, nil
}

func (o *Orchestrator) cacheKey(cat model.Category, page int, sources []model.SourceDescriptor) string {
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	return cache.Key{
		Category:   cat,
		Page:       page,
		Sources:    urls,
		Sort:       o.sort,
		Restricted: o.restricted.Allow,
	}.String()
}

// allow applies the debounce with the current profile's interval.
func (o *Orchestrator) allow(interval time.Duration) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	now := o.now()
	if o.debounce.Limit() != limit {
		o.debounce.SetLimitAt(now, limit)
	}
	return o.debounce.AllowN(now, 1)
}

// annotate marks items already on the bookshelf. The quality order weighs
// bookshelf membership, which is not part of the cache key, so in that mode
// the page is re-ranked after marking.
func (o *Orchestrator) annotate(items []model.DiscoveryItem) []model.DiscoveryItem {
	if o.bookshelf == nil {
		return items
	}
	for i := range items {
		items[i].InBookshelf = o.bookshelf.Contains(items[i].Name, items[i].Author)
	}
	if o.sort == ranking.SortQuality {
		return ranking.Sort(items, o.sort, ranking.NewContext())
	}
	return items
}

// ClearCache drops every cached page and snapshot.
func (o *Orchestrator) ClearCache() {
	o.cache.Clear()
	o.events.Info(otel.KindCacheEvict, "coord", "cache cleared")
}

// ClearCacheForCategory drops cat's cached pages and snapshot.
func (o *Orchestrator) ClearCacheForCategory(cat model.Category) {
	n := o.cache.DeleteCategory(cat)
	logging.Debug("coord: category cache cleared", "category", cat, "entries", n)
	o.events.Emit(otel.Event{Kind: otel.KindCacheEvict, Comp: "coord", Category: string(cat), Count: n})
}

// CacheStats reports the memory tier.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// Snapshot returns the last page 1 loaded for cat, for cold start.
func (o *Orchestrator) Snapshot(cat model.Category) ([]model.DiscoveryItem, bool) {
	items, ok := o.cache.Snapshot(cat)
	if ok {
		items = o.annotate(items)
	}
	return items, ok
}

// Selector exposes the source selector, e.g. for health listings.
func (o *Orchestrator) Selector() *selection.Selector {
	return o.sel
}

func cloneItems(items []model.DiscoveryItem) []model.DiscoveryItem {
	if items == nil {
		return nil
	}
	return append([]model.DiscoveryItem(nil), items...)
}
