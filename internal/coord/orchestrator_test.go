package coord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/discover/internal/cache"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/otel"
	"github.com/abelbrown/discover/internal/selection"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeClient implements SourceClient. errs are consumed one per call; the
// last one repeats.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int
	items map[string][]model.RawItem
	errs  map[string][]error
	block chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls: make(map[string]int),
		items: make(map[string][]model.RawItem),
		errs:  make(map[string][]error),
	}
}

func (f *fakeClient) Explore(ctx context.Context, src model.SourceDescriptor, exploreURL string, page int) ([]model.RawItem, error) {
	f.mu.Lock()
	f.calls[src.URL]++
	n := f.calls[src.URL]
	errs := f.errs[src.URL]
	items := f.items[src.URL]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(errs) > 0 {
		if err := errs[min(n, len(errs))-1]; err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeClient) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type permanentError struct{}

func (permanentError) Error() string   { return "not found" }
func (permanentError) Retryable() bool { return false }

type fakeShelf map[string]bool

func (s fakeShelf) Contains(name, author string) bool { return s[name] }

type fakeMaint struct {
	mu     sync.Mutex
	purges int
	saves  int
	saved  []model.SourceDescriptor
}

func (m *fakeMaint) DeleteExpired() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purges++
	return 2, nil
}

func (m *fakeMaint) SaveSourceStates(sources []model.SourceDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.saved = sources
	return nil
}

func source(name string) model.SourceDescriptor {
	return model.SourceDescriptor{
		Name:    name,
		URL:     "https://" + name + ".example",
		Type:    model.SourceText,
		Weight:  50,
		Enabled: true,
	}
}

func raw(name, author string) model.RawItem {
	return model.RawItem{Name: name, Author: author, TocURL: "https://toc.example/" + name}
}

type harness struct {
	o      *Orchestrator
	client *fakeClient
	clock  *fakeClock
	cache  *cache.Store
	sel    *selection.Selector
}

// newHarness wires an orchestrator on a wifi profile with the peak window
// disabled. Every profile that can result allows at least three sources.
func newHarness(t *testing.T, sources []model.SourceDescriptor, configure func(*Options, *selection.Config)) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)}
	client := newFakeClient()

	selCfg := selection.Config{Network: selection.NetworkWifi, Quality: selection.QualityGood}
	opts := Options{Client: client, Now: clock.Now}
	if configure != nil {
		configure(&opts, &selCfg)
	}
	sel := selection.New(selCfg, sources, clock.Now)
	store := cache.New(cache.Options{Capacity: 50, Now: clock.Now})
	opts.Selector, opts.Cache = sel, store

	o, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{o: o, client: client, clock: clock, cache: store, sel: sel}
}

func names(items []model.DiscoveryItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it.Name] = true
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without client, selector and cache")
	}
	sel := selection.New(selection.DefaultConfig(), nil, nil)
	_, err := New(Options{Client: newFakeClient(), Selector: sel, Cache: cache.New(cache.Options{}), Sort: "random"})
	if err == nil {
		t.Error("expected error for unknown sort mode")
	}
}

func TestLoadPageRepeatHitsCache(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a"), source("b"), source("c")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	h.client.items[srcs[1].URL] = []model.RawItem{raw("Leviathan", "Paul Auster")}
	h.client.items[srcs[2].URL] = []model.RawItem{raw("City of Glass", "Paul Auster")}

	ctx := context.Background()
	first, err := h.o.LoadPage(ctx, model.Text, 1)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(first.Items) != 3 || !first.HasMore || first.Cached {
		t.Fatalf("unexpected first page: %+v", first)
	}
	if h.client.total() != 3 {
		t.Fatalf("expected 3 client calls, got %d", h.client.total())
	}

	h.clock.Advance(time.Minute)
	second, err := h.o.LoadPage(ctx, model.Text, 1)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if h.client.total() != 3 {
		t.Errorf("cache hit must not call sources, got %d calls", h.client.total())
	}
	if !second.Cached || len(second.Items) != 3 {
		t.Errorf("expected cached page of 3, got %+v", second)
	}
	for i := range first.Items {
		if first.Items[i].Name != second.Items[i].Name {
			t.Errorf("item %d: %q != %q", i, first.Items[i].Name, second.Items[i].Name)
		}
	}
}

func TestLoadPageExpiredRefetches(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}

	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(cache.DefaultTTL + time.Second)
	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p.Cached || h.client.total() != 2 {
		t.Errorf("expired entry should refetch: cached=%v calls=%d", p.Cached, h.client.total())
	}
}

func TestLoadPageFailureIsolated(t *testing.T) {
	srcs := []model.SourceDescriptor{source("good"), source("bad"), source("other")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	h.client.errs[srcs[1].URL] = []error{errors.New("connection reset")}
	h.client.items[srcs[2].URL] = []model.RawItem{raw("Leviathan", "Paul Auster")}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatalf("a failing source must not fail the page: %v", err)
	}
	got := names(p.Items)
	if len(got) != 2 || !got["Moon Palace"] || !got["Leviathan"] {
		t.Errorf("unexpected items: %v", got)
	}

	bad, _ := h.sel.Source(srcs[1].URL)
	if bad.Failures != 1 || !bad.InBackoff(h.clock.Now()) || bad.LastError == "" {
		t.Errorf("failed source not backed off: %+v", bad)
	}
	good, _ := h.sel.Source(srcs[0].URL)
	if good.Failures != 0 || good.ItemCount != 1 || good.LastUpdate.IsZero() {
		t.Errorf("good source not updated: %+v", good)
	}
}

func TestLoadPageAllFailedNotCached(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a"), source("b")}
	h := newHarness(t, srcs, nil)
	for _, s := range srcs {
		h.client.errs[s.URL] = []error{permanentError{}}
	}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(p.Items) != 0 || p.HasMore {
		t.Errorf("expected empty page, got %+v", p)
	}
	if n := h.o.CacheStats().ItemCount; n != 0 {
		t.Errorf("failed page must not be cached, got %d entries", n)
	}

	// Both sources are now backing off, so nothing is picked.
	h.clock.Advance(time.Second)
	p, err = h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil || len(p.Items) != 0 {
		t.Errorf("expected empty page with no error, got %+v, %v", p, err)
	}
	if h.client.total() != 2 {
		t.Errorf("sources in backoff were called: %d calls", h.client.total())
	}
}

func TestLoadPageRetriesTransientErrors(t *testing.T) {
	srcs := []model.SourceDescriptor{source("flaky")}
	h := newHarness(t, srcs, nil)
	h.client.errs[srcs[0].URL] = []error{errors.New("timeout"), nil}
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 {
		t.Errorf("expected item after retry, got %d", len(p.Items))
	}
	if h.client.callsTo(srcs[0].URL) != 2 {
		t.Errorf("expected 2 attempts, got %d", h.client.callsTo(srcs[0].URL))
	}
	if s, _ := h.sel.Source(srcs[0].URL); s.Failures != 0 {
		t.Errorf("successful retry should leave no failures, got %d", s.Failures)
	}
}

func TestLoadPageSkipsRetryForPermanentErrors(t *testing.T) {
	srcs := []model.SourceDescriptor{source("gone")}
	h := newHarness(t, srcs, nil)
	h.client.errs[srcs[0].URL] = []error{permanentError{}}

	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); err != nil {
		t.Fatal(err)
	}
	if n := h.client.callsTo(srcs[0].URL); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestLoadPageMergesDuplicates(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a"), source("b")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace (Complete)", "Paul Auster")}
	h.client.items[srcs[1].URL] = []model.RawItem{raw("moon palace", "paul auster")}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 {
		t.Fatalf("expected duplicates merged into 1 item, got %d", len(p.Items))
	}
	if len(p.Items[0].AltSources) != 1 {
		t.Errorf("expected one alternate source, got %v", p.Items[0].AltSources)
	}
	if p.Items[0].Quality <= 0 {
		t.Errorf("representative should carry a quality score")
	}
}

func TestLoadPageKeepsOnlyCategory(t *testing.T) {
	srcs := []model.SourceDescriptor{source("mixed")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{
		raw("三体 有声书", "刘慈欣"),
		raw("Moon Palace", "Paul Auster"),
	}

	p, err := h.o.LoadPage(context.Background(), model.Audio, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 || p.Items[0].Category != model.Audio {
		t.Fatalf("expected only the audio item, got %+v", p.Items)
	}
	if p.Items[0].Source == nil || p.Items[0].Source.URL != srcs[0].URL {
		t.Errorf("item should point at its source")
	}
}

func TestLoadPageRestrictedContent(t *testing.T) {
	adult := raw("hentai xxx collection", "")
	clean := raw("Moon Palace", "Paul Auster")

	tests := []struct {
		name  string
		allow bool
		want  int
	}{
		{"excluded when not allowed", false, 1},
		{"kept when allowed", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcs := []model.SourceDescriptor{source("a")}
			h := newHarness(t, srcs, func(o *Options, _ *selection.Config) {
				o.Restricted = filter.DefaultRestricted(tt.allow, 0)
			})
			h.client.items[srcs[0].URL] = []model.RawItem{adult, clean}

			p, err := h.o.LoadPage(context.Background(), model.Text, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(p.Items) != tt.want {
				t.Fatalf("expected %d items, got %d", tt.want, len(p.Items))
			}
			for _, it := range p.Items {
				if it.Name == adult.Name && (it.Category != model.Text || it.Restricted <= 0) {
					t.Errorf("allowed restricted item should be Text with its score, got %+v", it)
				}
			}
		})
	}
}

func TestLoadPageThrottled(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	ctx := context.Background()

	if _, err := h.o.LoadPage(ctx, model.Text, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := h.o.LoadPage(ctx, model.Text, 2); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if h.client.total() != 1 {
		t.Errorf("throttled load must not fetch, got %d calls", h.client.total())
	}

	h.clock.Advance(10 * time.Second)
	if _, err := h.o.LoadPage(ctx, model.Text, 2); err != nil {
		t.Errorf("load after interval: %v", err)
	}
}

func TestRefreshBypassesCacheAndDebounce(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	ctx := context.Background()

	if _, err := h.o.LoadPage(ctx, model.Text, 1); err != nil {
		t.Fatal(err)
	}
	p, err := h.o.Refresh(ctx, model.Text)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if p.Cached || h.client.total() != 2 {
		t.Errorf("refresh should refetch: cached=%v calls=%d", p.Cached, h.client.total())
	}
	if _, err := h.o.Refresh(ctx, model.Category("PODCAST")); err == nil {
		t.Error("expected error for invalid category")
	}
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a"), source("b")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	h.client.items[srcs[1].URL] = []model.RawItem{raw("Leviathan", "Paul Auster")}
	h.client.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.o.LoadPage(context.Background(), model.Text, 1)
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.client.total() < len(srcs) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(h.client.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if h.client.total() != len(srcs) {
		t.Errorf("expected one fetch per source, got %d calls", h.client.total())
	}
}

func TestCallerCancelDoesNotAbortFetch(t *testing.T) {
	srcs := []model.SourceDescriptor{source("slow")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	h.client.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.o.LoadPage(ctx, model.Text, 1)
		done <- err
	}()

	for h.client.total() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(h.client.block)
	deadline := time.Now().Add(2 * time.Second)
	for h.o.CacheStats().ItemCount == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.o.CacheStats().ItemCount != 1 {
		t.Error("in-flight fetch should complete and fill the cache after the caller left")
	}
}

func TestOfflineServesSnapshot(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, func(_ *Options, c *selection.Config) {
		c.Network = selection.NetworkOffline
	})

	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline without snapshot, got %v", err)
	}

	var it model.DiscoveryItem
	it.Name, it.Category = "Moon Palace", model.Text
	h.cache.PutSnapshot(model.Text, []model.DiscoveryItem{it})

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if !p.Stale || len(p.Items) != 1 || p.HasMore {
		t.Errorf("expected stale snapshot page, got %+v", p)
	}
	if h.client.total() != 0 {
		t.Errorf("offline load must not call sources")
	}
}

func TestOfflineFallsBackToAggregateSnapshot(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, func(_ *Options, c *selection.Config) {
		c.Network = selection.NetworkOffline
	})

	var book, show model.DiscoveryItem
	book.Name, book.Category = "Moon Palace", model.Text
	show.Name, show.Category = "Night Reading", model.Audio
	h.cache.PutSnapshot(model.All, []model.DiscoveryItem{book, show})

	p, err := h.o.LoadPage(context.Background(), model.Audio, 1)
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if !p.Stale || len(p.Items) != 1 || p.Items[0].Name != "Night Reading" {
		t.Errorf("expected audio items from the aggregate snapshot, got %+v", p.Items)
	}

	if _, err := h.o.LoadPage(context.Background(), model.Image, 1); !errors.Is(err, ErrOffline) {
		t.Errorf("no image items anywhere: expected ErrOffline, got %v", err)
	}
}

func TestRepeatedFeedEntryCollapsed(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster"), raw("Moon Palace", "Paul Auster")}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 || len(p.Items[0].AltSources) != 0 {
		t.Errorf("expected one item with no alternates, got %+v", p.Items)
	}
}

func TestQualitySortFollowsBookshelf(t *testing.T) {
	shelf := fakeShelf{"Leviathan": true}
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, func(o *Options, _ *selection.Config) {
		o.Sort = "quality"
		o.Bookshelf = shelf
	})
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster"), raw("Leviathan", "Paul Auster")}

	p, err := h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 2 || p.Items[0].Name != "Leviathan" {
		t.Fatalf("saved work should lead a quality page, got %v", p.Items)
	}

	// The shelf changes after the page was cached.
	delete(shelf, "Leviathan")
	shelf["Moon Palace"] = true
	p, err = h.o.LoadPage(context.Background(), model.Text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Cached || p.Items[0].Name != "Moon Palace" {
		t.Errorf("cached page not re-ranked: cached=%v first=%q", p.Cached, p.Items[0].Name)
	}
}

func TestSnapshotWrittenForFirstPage(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}

	if _, ok := h.o.Snapshot(model.Text); ok {
		t.Fatal("no snapshot expected before the first load")
	}
	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); err != nil {
		t.Fatal(err)
	}
	snap, ok := h.o.Snapshot(model.Text)
	if !ok || len(snap) != 1 {
		t.Errorf("expected snapshot of page 1, got %v, %v", snap, ok)
	}
}

func TestBookshelfAnnotation(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, func(o *Options, _ *selection.Config) {
		o.Bookshelf = fakeShelf{"Moon Palace": true}
	})
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster"), raw("Leviathan", "Paul Auster")}

	for _, label := range []string{"fresh", "cached"} {
		p, err := h.o.LoadPage(context.Background(), model.Text, 1)
		if err != nil {
			t.Fatal(err)
		}
		for _, it := range p.Items {
			if it.InBookshelf != (it.Name == "Moon Palace") {
				t.Errorf("%s: %q InBookshelf=%v", label, it.Name, it.InBookshelf)
			}
		}
	}
}

func TestClearCache(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster"), raw("三体 有声书", "刘慈欣")}
	ctx := context.Background()

	if _, err := h.o.LoadPage(ctx, model.Text, 1); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Second)
	if _, err := h.o.LoadPage(ctx, model.Audio, 1); err != nil {
		t.Fatal(err)
	}
	if n := h.o.CacheStats().ItemCount; n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}

	h.o.ClearCacheForCategory(model.Audio)
	if n := h.o.CacheStats().ItemCount; n != 1 {
		t.Errorf("expected 1 entry after clearing audio, got %d", n)
	}
	if _, ok := h.o.Snapshot(model.Audio); ok {
		t.Error("audio snapshot should be cleared")
	}

	h.o.ClearCache()
	if n := h.o.CacheStats().ItemCount; n != 0 {
		t.Errorf("expected empty cache, got %d", n)
	}
}

func TestLoadPageEmitsEvents(t *testing.T) {
	events := otel.NewNullLogger()
	ring := otel.NewRingBuffer(64)
	events.SetRingBuffer(ring)

	srcs := []model.SourceDescriptor{source("a"), source("b")}
	h := newHarness(t, srcs, func(o *Options, _ *selection.Config) {
		o.Events = events
	})
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}
	h.client.errs[srcs[1].URL] = []error{permanentError{}}

	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); err != nil {
		t.Fatal(err)
	}
	events.Close()

	stats := ring.Stats()
	for kind, want := range map[otel.EventKind]int{
		otel.KindCacheMiss:     1,
		otel.KindLoadStart:     1,
		otel.KindLoadComplete:  1,
		otel.KindFetchComplete: 1,
		otel.KindFetchError:    1,
		otel.KindDedupComplete: 1,
	} {
		if stats[kind] != want {
			t.Errorf("%s: got %d events, want %d", kind, stats[kind], want)
		}
	}

	loads := ring.ByPrefix("load.")
	if len(loads) != 2 || loads[0].LoadID == "" || loads[0].LoadID != loads[1].LoadID {
		t.Errorf("load events should share a load id: %+v", loads)
	}
}

func TestSweep(t *testing.T) {
	srcs := []model.SourceDescriptor{source("a"), source("b")}
	h := newHarness(t, srcs, nil)
	h.client.items[srcs[0].URL] = []model.RawItem{raw("Moon Palace", "Paul Auster")}

	if _, err := h.o.LoadPage(context.Background(), model.Text, 1); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(cache.DefaultTTL + time.Minute)

	m := &fakeMaint{}
	res := h.o.Sweep(m)
	if res.Evicted != 1 || res.Purged != 2 {
		t.Errorf("unexpected sweep result: %+v", res)
	}
	if m.purges != 1 || m.saves != 1 || len(m.saved) != 2 {
		t.Errorf("maintenance not run: %+v", m)
	}

	if res := h.o.Sweep(nil); res.Evicted != 0 {
		t.Errorf("second sweep evicted %d", res.Evicted)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, []model.SourceDescriptor{source("a")}, nil)
	m := &fakeMaint{}

	if err := h.o.Start(0, m); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := h.o.Start(time.Hour, m); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.o.Start(time.Hour, m); err == nil {
		t.Error("expected error for second Start")
	}
	if err := h.o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	m.mu.Lock()
	saves := m.saves
	m.mu.Unlock()
	if saves != 1 {
		t.Errorf("Stop should save source states once, got %d", saves)
	}
	if err := h.o.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
