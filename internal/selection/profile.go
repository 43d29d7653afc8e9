package selection

import (
	"math"
	"time"

	"github.com/abelbrown/discover/internal/model"
)

// Profile is the concurrency and quota envelope for one load.
type Profile struct {
	Name           string
	MaxConcurrent  int
	Timeout        time.Duration
	Retries        int
	MinInterval    time.Duration
	SourcesPerPage int
}

// Offline reports whether the profile forbids network loads.
func (p Profile) Offline() bool {
	return p.SourcesPerPage <= 0
}

var (
	profileFast = Profile{Name: "fast", MaxConcurrent: 8, Timeout: 15 * time.Second, Retries: 2,
		MinInterval: 500 * time.Millisecond, SourcesPerPage: 8}
	profileBalanced = Profile{Name: "balanced", MaxConcurrent: 6, Timeout: 15 * time.Second, Retries: 2,
		MinInterval: 800 * time.Millisecond, SourcesPerPage: 6}
	profileCellular = Profile{Name: "cellular", MaxConcurrent: 4, Timeout: 20 * time.Second, Retries: 1,
		MinInterval: time.Second, SourcesPerPage: 4}
	profileMetered = Profile{Name: "metered", MaxConcurrent: 3, Timeout: 20 * time.Second, Retries: 1,
		MinInterval: 1500 * time.Millisecond, SourcesPerPage: 3}
	profileConserve = Profile{Name: "conserve", MaxConcurrent: 2, Timeout: 25 * time.Second, Retries: 1,
		MinInterval: 2 * time.Second, SourcesPerPage: 3}
	profileOffline = Profile{Name: "offline", MaxConcurrent: 1, Timeout: 5 * time.Second,
		MinInterval: 5 * time.Second}
)

// ProfileFor maps an environment onto a profile. Peak hours trim one source
// per page (never below two) and stretch the minimum interval by half.
func ProfileFor(env Environment) Profile {
	var p Profile
	switch {
	case env.Network == NetworkOffline:
		return profileOffline
	case env.Quality == QualityPoor || env.Device == DeviceLow:
		p = profileConserve
	case env.Network == NetworkCellular && env.Quality == QualityGood:
		p = profileCellular
	case env.Network == NetworkCellular:
		p = profileMetered
	case env.Device == DeviceHigh && env.Quality == QualityGood:
		p = profileFast
	default:
		p = profileBalanced
	}

	if env.Peak {
		p.Name += "+peak"
		p.SourcesPerPage = max(p.SourcesPerPage-1, 2)
		p.MinInterval = p.MinInterval * 3 / 2
	}
	return p
}

// categoryMultiplier scales the per-page quota. Media-heavy categories have
// fewer good sources per page, so they fan out wider.
var categoryMultiplier = map[model.Category]float64{
	model.Text:  1.0,
	model.Audio: 1.0,
	model.Image: 0.75,
	model.Music: 1.5,
	model.Drama: 1.5,
	model.File:  0.5,
	model.All:   1.25,
}

// Quota is the number of sources to query for cat under p.
func Quota(p Profile, cat model.Category) int {
	if p.Offline() {
		return 0
	}
	m, ok := categoryMultiplier[cat]
	if !ok {
		m = 1.0
	}
	return max(int(math.Round(float64(p.SourcesPerPage)*m)), 1)
}

// BackoffTiers are the cooldowns applied after consecutive failures.
type BackoffTiers struct {
	Short  time.Duration // 1-2 failures
	Medium time.Duration // 3-5 failures
	Long   time.Duration // 6 or more
}

// DefaultBackoffTiers returns 30s / 5m / 30m.
func DefaultBackoffTiers() BackoffTiers {
	return BackoffTiers{Short: 30 * time.Second, Medium: 5 * time.Minute, Long: 30 * time.Minute}
}

// For returns the cooldown after the given number of consecutive failures.
func (b BackoffTiers) For(failures int) time.Duration {
	switch {
	case failures <= 0:
		return 0
	case failures <= 2:
		return b.Short
	case failures <= 5:
		return b.Medium
	default:
		return b.Long
	}
}
