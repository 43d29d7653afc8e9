package model

import "time"

// SourceType is the media type a source declares for itself.
type SourceType string

const (
	SourceText  SourceType = "text"
	SourceAudio SourceType = "audio"
	SourceImage SourceType = "image"
	SourceFile  SourceType = "file"
)

// Category returns the category a declared media type maps to directly,
// and false for text (the default, which is not treated as a hint).
func (t SourceType) Category() (Category, bool) {
	switch t {
	case SourceAudio:
		return Audio, true
	case SourceImage:
		return Image, true
	case SourceFile:
		return File, true
	}
	return "", false
}

// ExploreRule holds CSS selectors for extracting items from an HTML explore page.
// A nil rule means the explore URL serves RSS or Atom.
type ExploreRule struct {
	List          string `json:"list" yaml:"list"`
	Name          string `json:"name" yaml:"name"`
	Author        string `json:"author,omitempty" yaml:"author,omitempty"`
	Kind          string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Intro         string `json:"intro,omitempty" yaml:"intro,omitempty"`
	Cover         string `json:"cover,omitempty" yaml:"cover,omitempty"`
	TocURL        string `json:"toc_url,omitempty" yaml:"toc_url,omitempty"`
	LatestChapter string `json:"latest_chapter,omitempty" yaml:"latest_chapter,omitempty"`
}

// SourceDescriptor describes a remote content provider together with its
// reliability state. The registry owns descriptors; only the selector
// mutates the runtime fields, after each fetch attempt.
type SourceDescriptor struct {
	URL         string       `json:"url"`
	Name        string       `json:"name"`
	Type        SourceType   `json:"type,omitempty"`
	ExploreURL  string       `json:"explore_url,omitempty"`
	Rule        *ExploreRule `json:"rule,omitempty"`
	Weight      int          `json:"weight"`
	CustomOrder int          `json:"custom_order,omitempty"`
	Enabled     bool         `json:"enabled"`

	// Optional overrides. Empty category means "not set".
	ManualCategory   Category      `json:"manual_category,omitempty"`
	DetectedCategory Category      `json:"detected_category,omitempty"`
	TTL              time.Duration `json:"ttl,omitempty"`

	// Runtime state
	AvgResponse  time.Duration `json:"avg_response,omitempty"`
	LastUpdate   time.Time     `json:"last_update,omitempty"`
	Failures     int           `json:"failures,omitempty"`
	BackoffUntil time.Time     `json:"backoff_until,omitempty"`
	ItemCount    int           `json:"item_count,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// InBackoff reports whether the source is cooling down at the given time.
func (s *SourceDescriptor) InBackoff(now time.Time) bool {
	return !s.BackoffUntil.IsZero() && now.Before(s.BackoffUntil)
}

// KnownCategory returns the manual override if set, else the detected hint.
func (s *SourceDescriptor) KnownCategory() (Category, bool) {
	if s.ManualCategory.Assignable() {
		return s.ManualCategory, true
	}
	if s.DetectedCategory.Assignable() {
		return s.DetectedCategory, true
	}
	return "", false
}

// NameAndURL is the text used when matching source-level signals.
func (s *SourceDescriptor) NameAndURL() string {
	return s.Name + " " + s.URL
}

// Response time buckets, fastest first.
const (
	ResponseFast     = 500 * time.Millisecond
	ResponseNormal   = time.Second
	ResponseSlow     = 2 * time.Second
	ResponseVerySlow = 5 * time.Second
)

// ResponseBucket maps an average response time onto [0,1], faster is higher.
// Unknown (zero) response time sits in the middle.
func ResponseBucket(d time.Duration) float64 {
	switch {
	case d <= 0:
		return 0.5
	case d <= ResponseFast:
		return 1.0
	case d <= ResponseNormal:
		return 0.8
	case d <= ResponseSlow:
		return 0.6
	case d <= ResponseVerySlow:
		return 0.4
	default:
		return 0.2
	}
}

// RecencyBucket maps the time since a source last updated onto [0,1].
func RecencyBucket(last, now time.Time) float64 {
	if last.IsZero() {
		return 0.3
	}
	age := now.Sub(last)
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 24*time.Hour:
		return 0.8
	case age <= 7*24*time.Hour:
		return 0.5
	default:
		return 0.2
	}
}

// WeightBucket maps a signed source weight onto [0,1].
func WeightBucket(w int) float64 {
	switch {
	case w >= 100:
		return 1.0
	case w >= 50:
		return 0.8
	case w >= 10:
		return 0.6
	case w >= 0:
		return 0.4
	default:
		return 0.1
	}
}
