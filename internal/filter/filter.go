// Package filter provides the restricted-content filter and pure filter
// functions over discovery items.
// The pure functions are simple: []Item in, []Item out. No side effects.
package filter

import (
	"github.com/abelbrown/discover/internal/model"
)

// ByCategory keeps items that belong in a query for cat. All keeps everything.
func ByCategory(items []model.DiscoveryItem, cat model.Category) []model.DiscoveryItem {
	if len(items) == 0 {
		return []model.DiscoveryItem{}
	}
	result := make([]model.DiscoveryItem, 0, len(items))
	for _, item := range items {
		if cat.Matches(item.Category) {
			result = append(result, item)
		}
	}
	return result
}

// BySource keeps only items from the specified source URLs.
func BySource(items []model.DiscoveryItem, sourceURLs []string) []model.DiscoveryItem {
	if len(items) == 0 || len(sourceURLs) == 0 {
		return []model.DiscoveryItem{}
	}

	allowed := make(map[string]bool, len(sourceURLs))
	for _, s := range sourceURLs {
		allowed[s] = true
	}

	result := make([]model.DiscoveryItem, 0, len(items))
	for _, item := range items {
		if item.Source != nil && allowed[item.Source.URL] {
			result = append(result, item)
		}
	}
	return result
}

// DedupURL removes items with duplicate table-of-contents URLs.
// First occurrence wins. Items without a URL are kept.
func DedupURL(items []model.DiscoveryItem) []model.DiscoveryItem {
	if len(items) == 0 {
		return []model.DiscoveryItem{}
	}

	seen := make(map[string]bool)
	result := make([]model.DiscoveryItem, 0, len(items))
	for _, item := range items {
		if item.TocURL != "" {
			if seen[item.TocURL] {
				continue
			}
			seen[item.TocURL] = true
		}
		result = append(result, item)
	}
	return result
}

// LimitPerSource caps the number of items per source, keeping the earliest
// items of each source and the input order. maxPerSource <= 0 means no cap.
func LimitPerSource(items []model.DiscoveryItem, maxPerSource int) []model.DiscoveryItem {
	if maxPerSource <= 0 {
		return items
	}
	counts := make(map[string]int)
	result := make([]model.DiscoveryItem, 0, len(items))
	for _, item := range items {
		key := ""
		if item.Source != nil {
			key = item.Source.URL
		}
		if counts[key] >= maxPerSource {
			continue
		}
		counts[key]++
		result = append(result, item)
	}
	return result
}
