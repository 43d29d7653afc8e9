package coord

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/discover/internal/classify"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
	"github.com/abelbrown/discover/internal/ranking"
	"github.com/abelbrown/discover/internal/sampling"
	"github.com/abelbrown/discover/internal/selection"
)

// sourceResult is the outcome of querying one source for one page.
type sourceResult struct {
	raw []model.RawItem
	err error
}

// fetchPage queries every picked source, runs the pipeline and fills the
// cache. ctx must not carry the caller's cancellation.
func (o *Orchestrator) fetchPage(ctx context.Context, cat model.Category, page int, key string, sources []model.SourceDescriptor, profile selection.Profile) Page {
	start := o.now()
	loadID := otel.NewLoadID()
	o.events.Emit(otel.Event{
		Kind: otel.KindLoadStart, Comp: "coord", LoadID: loadID,
		Category: string(cat), Page: page, Count: len(sources),
		Extra: map[string]any{"profile": profile.Name},
	})

	results := o.fetchAll(ctx, loadID, page, sources, profile)

	// Items point at these copies, never at the selector's registry.
	snapshots := make([]*model.SourceDescriptor, len(sources))
	for i := range sources {
		snapshots[i] = &sources[i]
	}

	var (
		items     []model.DiscoveryItem
		hasMore   bool
		succeeded int
		excluded  int
	)
	for i, res := range results {
		if res.err != nil {
			continue
		}
		succeeded++
		if len(res.raw) > 0 {
			hasMore = true
		}
		var kept []model.DiscoveryItem
		for _, raw := range res.raw {
			item, ok := o.process(raw, snapshots[i], cat)
			if !ok {
				if !o.restricted.Allow && o.restricted.Excluded(item.Restricted) {
					excluded++
				}
				continue
			}
			kept = append(kept, item)
		}
		// Feeds sometimes list one entry twice.
		items = append(items, filter.DedupURL(kept)...)
	}

	before := len(items)
	items = o.dedup.Dedupe(items)
	o.events.Emit(otel.Event{
		Kind: otel.KindDedupComplete, Comp: "coord", LoadID: loadID, Count: len(items),
		Extra: map[string]any{"in": before, "excluded": excluded},
	})

	items = sampling.Interleave(items, o.sampler)
	items = ranking.Sort(items, o.sort, ranking.NewContext())

	if succeeded > 0 {
		o.cache.Put(key, items, o.cache.Policy().Resolve(cat, snapshots))
		if page == 1 && len(items) > 0 {
			o.cache.PutSnapshot(cat, items)
		}
	} else {
		logging.Warn("coord: every source failed, page not cached", "category", cat, "page", page)
	}

	o.events.Emit(otel.Event{
		Kind: otel.KindLoadComplete, Comp: "coord", LoadID: loadID,
		Category: string(cat), Page: page, Count: len(items), Dur: o.now().Sub(start),
		Extra: map[string]any{"sources": len(sources), "succeeded": succeeded},
	})
	return Page{Items: items, HasMore: hasMore}
}

// fetchAll queries sources concurrently, bounded by the profile. One
// source failing never affects the others.
func (o *Orchestrator) fetchAll(ctx context.Context, loadID string, page int, sources []model.SourceDescriptor, profile selection.Profile) []sourceResult {
	results := make([]sourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(max(profile.MaxConcurrent, 1))
	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.fetchSource(ctx, loadID, page, src, profile)
			return nil // errors are per source
		})
	}
	_ = g.Wait()
	return results
}

// fetchSource runs up to 1+Retries attempts, each under the profile
// timeout, and reports the outcome to the selector once.
func (o *Orchestrator) fetchSource(ctx context.Context, loadID string, page int, src model.SourceDescriptor, profile selection.Profile) sourceResult {
	o.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindFetchStart, Comp: "coord", LoadID: loadID, Source: src.Name, Page: page})

	var (
		raw     []model.RawItem
		err     error
		elapsed time.Duration
	)
	for attempt := 0; attempt <= profile.Retries; attempt++ {
		raw, elapsed, err = o.attempt(ctx, src, page, profile.Timeout)
		if err == nil || !retryable(err) {
			break
		}
		logging.Debug("coord: retrying source", "source", src.Name, "attempt", attempt+1, "error", err)
	}

	if err != nil {
		if rerr := o.sel.ReportFailure(src.URL, elapsed, err); rerr != nil {
			logging.Warn("coord: report failure", "source", src.Name, "error", rerr)
		}
		logging.Warn("coord: source failed", "source", src.Name, "page", page, "error", err)
		o.events.Emit(otel.Event{
			Level: otel.LevelWarn, Kind: otel.KindFetchError, Comp: "coord", LoadID: loadID,
			Source: src.Name, Page: page, Dur: elapsed, Err: err.Error(),
		})
		return sourceResult{err: err}
	}

	if rerr := o.sel.ReportResult(src.URL, elapsed, true, len(raw)); rerr != nil {
		logging.Warn("coord: report result", "source", src.Name, "error", rerr)
	}
	o.events.Emit(otel.Event{
		Kind: otel.KindFetchComplete, Comp: "coord", LoadID: loadID,
		Source: src.Name, Page: page, Dur: elapsed, Count: len(raw),
	})
	return sourceResult{raw: raw}
}

func (o *Orchestrator) attempt(ctx context.Context, src model.SourceDescriptor, page int, timeout time.Duration) (raw []model.RawItem, elapsed time.Duration, err error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, &panicError{value: r}
		}
		elapsed = time.Since(start)
	}()
	raw, err = o.client.Explore(actx, src, "", page)
	return raw, elapsed, err
}

// retryable is false for errors that say so, e.g. an HTTP 404.
func retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "source client panicked" }

// process classifies and filters one raw item. The returned item carries
// its restricted score even when ok is false.
func (o *Orchestrator) process(raw model.RawItem, src *model.SourceDescriptor, cat model.Category) (model.DiscoveryItem, bool) {
	score := o.restricted.Score(raw, src)
	flagged := o.restricted.Excluded(score)

	var item model.DiscoveryItem
	item.Source = src
	item.Restricted = score

	if flagged && !o.restricted.Allow {
		o.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindFilterExcluded, Comp: "coord", Source: src.Name, Msg: raw.Name})
		return item, false
	}
	if flagged {
		item.ClassifiedItem = classify.Safe(raw)
	} else {
		item.ClassifiedItem = o.classifier.ClassifyItem(raw, src)
	}
	return item, cat.Matches(item.Category)
}
