package selection

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
)

// ErrUnknownSource is returned for URLs that are not registered.
var ErrUnknownSource = errors.New("selection: unknown source")

// responseAlpha is the EWMA smoothing factor for response times.
const responseAlpha = 0.3

// Priority weights for first-page ranking.
const (
	priorityWeight   = 0.5
	priorityResponse = 0.3
	priorityRecency  = 0.2
)

// Selector owns the source registry and its reliability state.
// Thread-safety: all methods are safe for concurrent use.
type Selector struct {
	mu      sync.Mutex
	sources []*model.SourceDescriptor
	byURL   map[string]*model.SourceDescriptor

	cfg Config
	now func() time.Time
}

// New creates a Selector over a copy of sources. A nil now uses time.Now.
func New(cfg Config, sources []model.SourceDescriptor, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	if cfg.Backoff == (BackoffTiers{}) {
		cfg.Backoff = DefaultBackoffTiers()
	}
	s := &Selector{
		byURL: make(map[string]*model.SourceDescriptor),
		cfg:   cfg,
		now:   now,
	}
	for _, src := range sources {
		s.register(src)
	}
	return s
}

// Register adds a source, or replaces the configuration of a registered
// one. Replacing keeps the recorded health: response time, failures,
// backoff and last update survive.
func (s *Selector) Register(src model.SourceDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.register(src)
}

func (s *Selector) register(src model.SourceDescriptor) {
	cp := src
	if old, ok := s.byURL[src.URL]; ok {
		cp.AvgResponse = old.AvgResponse
		cp.Failures = old.Failures
		cp.BackoffUntil = old.BackoffUntil
		cp.LastUpdate = old.LastUpdate
		cp.ItemCount = old.ItemCount
		cp.LastError = old.LastError
		*old = cp
		return
	}
	s.sources = append(s.sources, &cp)
	s.byURL[cp.URL] = &cp
}

// Sources returns copies of every registered source in registration order.
func (s *Selector) Sources() []model.SourceDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.SourceDescriptor, len(s.sources))
	for i, src := range s.sources {
		out[i] = *src
	}
	return out
}

// Source returns a copy of the source registered under url.
func (s *Selector) Source(url string) (model.SourceDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.byURL[url]
	if !ok {
		return model.SourceDescriptor{}, false
	}
	return *src, true
}

// Environment observes the current runtime conditions.
func (s *Selector) Environment() Environment {
	return Detect(s.cfg, s.now())
}

// CurrentProfile returns the profile for the current environment.
func (s *Selector) CurrentProfile() Profile {
	return ProfileFor(s.Environment())
}

// PickSources chooses the sources to query for page of cat. Sources that
// declare cat come first, then sources with no known category; sources
// known to serve another category are skipped unless cat is All. Page 1
// takes the highest priority sources; later pages rotate through the
// ranked list so deeper pages reach other sources. Sources in backoff and
// disabled sources are never picked. The result holds copies.
func (s *Selector) PickSources(page int, cat model.Category, p Profile) []model.SourceDescriptor {
	quota := Quota(p, cat)
	if quota == 0 {
		return nil
	}
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var matched, general []*model.SourceDescriptor
	for _, src := range s.sources {
		if !src.Enabled || src.InBackoff(now) {
			continue
		}
		known, ok := knownCategory(src)
		switch {
		case cat == model.All || (ok && known == cat):
			matched = append(matched, src)
		case !ok:
			general = append(general, src)
		}
	}
	rankByPriority(matched, now)
	rankByPriority(general, now)
	ranked := append(matched, general...)

	if len(ranked) == 0 {
		return nil
	}
	n := min(quota, len(ranked))
	start := 0
	if page > 1 {
		start = ((page - 1) * quota) % len(ranked)
	}

	out := make([]model.SourceDescriptor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, *ranked[(start+i)%len(ranked)])
	}
	return out
}

// knownCategory is the manual or detected category, else the declared type.
func knownCategory(src *model.SourceDescriptor) (model.Category, bool) {
	if c, ok := src.KnownCategory(); ok {
		return c, true
	}
	return src.Type.Category()
}

// Priority scores a source for first-page ranking in [0,1].
func Priority(src *model.SourceDescriptor, now time.Time) float64 {
	return priorityWeight*model.WeightBucket(src.Weight) +
		priorityResponse*model.ResponseBucket(src.AvgResponse) +
		priorityRecency*model.RecencyBucket(src.LastUpdate, now)
}

func rankByPriority(srcs []*model.SourceDescriptor, now time.Time) {
	sort.SliceStable(srcs, func(i, j int) bool {
		pi, pj := Priority(srcs[i], now), Priority(srcs[j], now)
		if pi != pj {
			return pi > pj
		}
		return srcs[i].Name < srcs[j].Name
	})
}

// ReportResult records one fetch attempt. Success resets the failure count
// and clears any backoff. Failure extends the backoff by the tier for the
// new failure count; an existing longer backoff is kept.
func (s *Selector) ReportResult(url string, responseTime time.Duration, success bool, itemCount int) error {
	return s.report(url, responseTime, success, itemCount, "")
}

// ReportFailure is ReportResult for a failed attempt, keeping the error text
// for display.
func (s *Selector) ReportFailure(url string, responseTime time.Duration, err error) error {
	msg := "failed"
	if err != nil {
		msg = err.Error()
	}
	return s.report(url, responseTime, false, 0, msg)
}

func (s *Selector) report(url string, rt time.Duration, success bool, itemCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.byURL[url]
	if !ok {
		return ErrUnknownSource
	}
	now := s.now()

	if rt > 0 {
		if src.AvgResponse <= 0 {
			src.AvgResponse = rt
		} else {
			src.AvgResponse = time.Duration(math.Round(responseAlpha*float64(rt) + (1-responseAlpha)*float64(src.AvgResponse)))
		}
	}

	if success {
		src.Failures = 0
		src.BackoffUntil = time.Time{}
		src.LastUpdate = now
		src.ItemCount = itemCount
		src.LastError = ""
		return nil
	}

	src.Failures++
	src.LastError = errMsg
	until := now.Add(s.cfg.Backoff.For(src.Failures))
	if until.After(src.BackoffUntil) {
		src.BackoffUntil = until
	}
	logging.Debug("selection: source backing off", "source", src.Name, "failures", src.Failures, "until", src.BackoffUntil)
	return nil
}

// ResetBackoff clears failure state for every source. It is the operator
// override and the only way backoff ends early without a successful fetch.
func (s *Selector) ResetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		src.Failures = 0
		src.BackoffUntil = time.Time{}
	}
}
