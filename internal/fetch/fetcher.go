// Package fetch retrieves explore pages from remote sources.
//
// A source's explore URL serves either an RSS/Atom feed or an HTML page.
// Feeds are parsed with gofeed; HTML pages are scraped with the source's
// CSS-selector rule. Requests to the same host are rate limited.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/abelbrown/discover/internal/model"
)

// PagePlaceholder in an explore URL is replaced with the page number.
const PagePlaceholder = "{{page}}"

const defaultUserAgent = "discover/1.0 (+https://github.com/abelbrown/discover)"

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options configure a Fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string

	// HostRate and HostBurst bound requests per host. Zero HostRate means
	// one request every 250ms.
	HostRate  rate.Limit
	HostBurst int

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Fetcher retrieves explore pages. Safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	userAgent string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	hostRate rate.Limit
	burst    int
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.HostRate == 0 {
		opts.HostRate = rate.Every(250 * time.Millisecond)
	}
	if opts.HostBurst <= 0 {
		opts.HostBurst = 2
	}
	return &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		limiters:  make(map[string]*rate.Limiter),
		hostRate:  opts.HostRate,
		burst:     opts.HostBurst,
	}
}

// limiter returns the rate.Limiter for host, creating one if needed.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.hostRate, f.burst)
		f.limiters[host] = l
	}
	return l
}

// ExpandPage fills the page placeholder. ok is false when the URL has no
// placeholder and page > 1, meaning the source has no further pages.
func ExpandPage(exploreURL string, page int) (string, bool) {
	if page < 1 {
		page = 1
	}
	if !strings.Contains(exploreURL, PagePlaceholder) {
		return exploreURL, page == 1
	}
	return strings.ReplaceAll(exploreURL, PagePlaceholder, strconv.Itoa(page)), true
}

// Explore fetches one page of src. An empty exploreURL uses the source's
// own. Returns no items and no error past a source's last page.
func (f *Fetcher) Explore(ctx context.Context, src model.SourceDescriptor, exploreURL string, page int) ([]model.RawItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if exploreURL == "" {
		exploreURL = src.ExploreURL
	}
	if exploreURL == "" {
		exploreURL = src.URL
	}
	pageURL, ok := ExpandPage(exploreURL, page)
	if !ok {
		return nil, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse explore url: %w", err)
	}
	if err := f.limiter(base.Host).Wait(ctx); err != nil {
		return nil, err
	}

	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if src.Rule != nil {
		return parseHTML(body, src.Rule, base, src.URL)
	}
	return parseFeed(body, src.URL)
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBody), resp.Body}, nil
}

// parseFeed converts RSS/Atom entries to raw items.
func parseFeed(r io.Reader, origin string) ([]model.RawItem, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]model.RawItem, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil || strings.TrimSpace(fi.Title) == "" {
			continue
		}
		items = append(items, convertFeedItem(fi, origin))
	}
	return items, nil
}

func convertFeedItem(fi *gofeed.Item, origin string) model.RawItem {
	item := model.RawItem{
		Name:      strings.TrimSpace(fi.Title),
		OriginURL: origin,
		TocURL:    fi.Link,
		Kind:      strings.Join(fi.Categories, ","),
	}
	if fi.Author != nil {
		item.Author = fi.Author.Name
	} else if len(fi.Authors) > 0 && fi.Authors[0] != nil {
		item.Author = fi.Authors[0].Name
	}

	intro := fi.Description
	if intro == "" {
		intro = fi.Content
	}
	item.Intro = truncate(plainText(intro), 500)

	if fi.Image != nil {
		item.CoverURL = fi.Image.URL
	}
	for _, enc := range fi.Enclosures {
		if enc == nil {
			continue
		}
		switch {
		case item.CoverURL == "" && strings.HasPrefix(enc.Type, "image/"):
			item.CoverURL = enc.URL
		case item.TocURL == "" && (strings.HasPrefix(enc.Type, "audio/") || strings.HasPrefix(enc.Type, "video/")):
			item.TocURL = enc.URL
		}
	}
	if fi.UpdatedParsed != nil {
		item.LatestChapter = fi.UpdatedParsed.UTC().Format(time.DateOnly)
	} else if fi.PublishedParsed != nil {
		item.LatestChapter = fi.PublishedParsed.UTC().Format(time.DateOnly)
	}
	return item
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
// Uses rune-aware slicing to avoid breaking UTF-8 characters.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
