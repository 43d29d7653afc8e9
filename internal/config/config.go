// Package config loads discover's settings from a JSON or YAML file, with
// environment overrides on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/discover/internal/classify"
	"github.com/abelbrown/discover/internal/filter"
	"github.com/abelbrown/discover/internal/model"
	"github.com/abelbrown/discover/internal/sampling"
)

// Config is the persistent application configuration.
type Config struct {
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Sort is the result order: default, weight, quality or name.
	Sort string `json:"sort" yaml:"sort"`

	// Interleave spreads sources across a page: round_robin or weighted.
	Interleave string `json:"interleave" yaml:"interleave"`

	Restricted RestrictedConfig `json:"restricted" yaml:"restricted"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Selection  SelectionConfig  `json:"selection" yaml:"selection"`
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch"`
	Dedup      DedupConfig      `json:"dedup" yaml:"dedup"`
	Classifier classify.Config  `json:"classifier" yaml:"classifier"`

	Sources []SourceConfig `json:"sources" yaml:"sources"`

	// path is where Load read from and Save writes to.
	path string
}

// RestrictedConfig gates the restricted-content filter.
type RestrictedConfig struct {
	Allow     bool    `json:"allow" yaml:"allow"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// CacheConfig sizes the result cache.
type CacheConfig struct {
	Capacity      int                 `json:"capacity" yaml:"capacity"`
	DefaultTTL    Duration            `json:"default_ttl" yaml:"default_ttl"`
	CategoryTTL   map[string]Duration `json:"category_ttl,omitempty" yaml:"category_ttl,omitempty"`
	SweepInterval Duration            `json:"sweep_interval" yaml:"sweep_interval"`
}

// SelectionConfig feeds environment detection and backoff.
type SelectionConfig struct {
	Network   string `json:"network" yaml:"network"`
	Quality   string `json:"quality,omitempty" yaml:"quality,omitempty"`
	MemoryMB  int    `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
	PeakStart int    `json:"peak_start" yaml:"peak_start"`
	PeakEnd   int    `json:"peak_end" yaml:"peak_end"`

	BackoffShort  Duration `json:"backoff_short" yaml:"backoff_short"`
	BackoffMedium Duration `json:"backoff_medium" yaml:"backoff_medium"`
	BackoffLong   Duration `json:"backoff_long" yaml:"backoff_long"`
}

// FetchConfig tunes the HTTP source client.
type FetchConfig struct {
	Timeout      Duration `json:"timeout" yaml:"timeout"`
	UserAgent    string   `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	HostInterval Duration `json:"host_interval" yaml:"host_interval"`
}

// DedupConfig sets the duplicate-grouping threshold.
type DedupConfig struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// SourceConfig is one entry of the source registry.
type SourceConfig struct {
	Name        string             `json:"name" yaml:"name"`
	URL         string             `json:"url" yaml:"url"`
	Type        string             `json:"type,omitempty" yaml:"type,omitempty"`
	ExploreURL  string             `json:"explore_url,omitempty" yaml:"explore_url,omitempty"`
	Rule        *model.ExploreRule `json:"rule,omitempty" yaml:"rule,omitempty"`
	Weight      int                `json:"weight" yaml:"weight"`
	CustomOrder int                `json:"custom_order,omitempty" yaml:"custom_order,omitempty"`
	Category    string             `json:"category,omitempty" yaml:"category,omitempty"`
	TTL         Duration           `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// Disabled sources stay in the registry but are never picked.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    DefaultDataDir(),
		LogLevel:   "info",
		Sort:       "default",
		Interleave: sampling.ModeRoundRobin,
		Restricted: RestrictedConfig{
			Threshold: filter.DefaultThreshold,
		},
		Cache: CacheConfig{
			Capacity:      200,
			DefaultTTL:    Minutes(10),
			SweepInterval: Minutes(5),
		},
		Selection: SelectionConfig{
			Network:       "unknown",
			PeakStart:     19,
			PeakEnd:       23,
			BackoffShort:  Seconds(30),
			BackoffMedium: Minutes(5),
			BackoffLong:   Minutes(30),
		},
		Fetch: FetchConfig{
			Timeout:      Seconds(30),
			HostInterval: Duration(250 * time.Millisecond),
		},
		Dedup:      DedupConfig{Threshold: 0.8},
		Classifier: classify.DefaultConfig(),
	}
}

// DefaultDataDir is ~/.discover.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".discover"
	}
	return filepath.Join(home, ".discover")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads path, or DefaultPath when path is empty. A missing file yields
// the defaults. Environment overrides apply either way. The format follows
// the extension: .json is JSON, anything else YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.path = path
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func decode(path string, data []byte, cfg *Config) error {
	if isJSON(path) {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Path is the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the config back to its path.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from DISCOVER_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DISCOVER_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DISCOVER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DISCOVER_NETWORK"); v != "" {
		c.Selection.Network = v
	}
	if v := os.Getenv("DISCOVER_ALLOW_RESTRICTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Restricted.Allow = b
		}
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if _, err := sampling.New(c.Interleave); err != nil {
		return err
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0,1], got %v", c.Dedup.Threshold)
	}
	for cat := range c.Cache.CategoryTTL {
		if _, err := model.ParseCategory(cat); err != nil {
			return fmt.Errorf("cache.category_ttl: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.URL == "" {
			return fmt.Errorf("sources[%d]: url is required", i)
		}
		if seen[s.URL] {
			return fmt.Errorf("sources[%d]: duplicate url %s", i, s.URL)
		}
		seen[s.URL] = true
		if s.Category != "" {
			if cat, err := model.ParseCategory(s.Category); err != nil || cat == model.All {
				return fmt.Errorf("sources[%d]: invalid category %q", i, s.Category)
			}
		}
	}
	return nil
}

// SourceDescriptors converts the registry into descriptors.
func (c *Config) SourceDescriptors() []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, 0, len(c.Sources))
	for _, s := range c.Sources {
		name := s.Name
		if name == "" {
			name = s.URL
		}
		d := model.SourceDescriptor{
			URL:         s.URL,
			Name:        name,
			Type:        model.SourceType(strings.ToLower(s.Type)),
			ExploreURL:  s.ExploreURL,
			Rule:        s.Rule,
			Weight:      s.Weight,
			CustomOrder: s.CustomOrder,
			Enabled:     !s.Disabled,
			TTL:         s.TTL.Std(),
		}
		if d.Type == "" {
			d.Type = model.SourceText
		}
		if s.Category != "" {
			d.ManualCategory, _ = model.ParseCategory(s.Category)
		}
		out = append(out, d)
	}
	return out
}

// CategoryTTLs returns the per-category TTL overrides.
func (c *Config) CategoryTTLs() map[model.Category]time.Duration {
	out := make(map[model.Category]time.Duration, len(c.Cache.CategoryTTL))
	for name, d := range c.Cache.CategoryTTL {
		if cat, err := model.ParseCategory(name); err == nil {
			out[cat] = d.Std()
		}
	}
	return out
}
