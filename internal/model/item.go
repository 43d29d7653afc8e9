package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RawItem is what a source client extracts from an explore page.
// Immutable once produced.
type RawItem struct {
	Name          string `json:"name"`
	Author        string `json:"author,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Intro         string `json:"intro,omitempty"`
	OriginURL     string `json:"origin_url"`
	TocURL        string `json:"toc_url,omitempty"`
	CoverURL      string `json:"cover_url,omitempty"`
	LatestChapter string `json:"latest_chapter,omitempty"`
	WordCount     string `json:"word_count,omitempty"`
}

// ClassifiedItem is a RawItem with its assigned category.
// A re-run of the classifier produces a new value; this one is never mutated.
type ClassifiedItem struct {
	RawItem
	Category Category `json:"category"`
	Score    float64  `json:"score"`
}

// DiscoveryItem is the unit the rest of the pipeline operates on.
// Source points at a read-only snapshot shared by every item from that source.
type DiscoveryItem struct {
	ClassifiedItem
	Source *SourceDescriptor `json:"source"`

	Restricted  float64  `json:"restricted,omitempty"`
	Quality     float64  `json:"quality,omitempty"`
	AltSources  []string `json:"alt_sources,omitempty"`
	InBookshelf bool     `json:"in_bookshelf,omitempty"`
}

// ID returns a deterministic identifier built from the source and item URLs.
func (d DiscoveryItem) ID() string {
	key := d.TocURL
	if key == "" {
		key = d.Name + "\x00" + d.Author
	}
	src := ""
	if d.Source != nil {
		src = d.Source.URL
	}
	return hashString(src + "\x00" + key)
}

// SourceName returns the owning source's display name, or "" when unset.
func (d DiscoveryItem) SourceName() string {
	if d.Source == nil {
		return ""
	}
	return d.Source.Name
}

// hashString creates a short hash of a string for use as an ID.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8])
}

// HashStrings hashes an ordered list of strings to a 16 character hex string.
func HashStrings(parts []string) string {
	return hashString(strings.Join(parts, "\n"))
}
