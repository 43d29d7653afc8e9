// Package sampling interleaves per-source result lists so one chatty source
// cannot fill a page on its own.
package sampling

import (
	"github.com/abelbrown/discover/internal/model"
)

// SourceQueue holds one source's items for a page, in the order the source
// returned them.
type SourceQueue struct {
	URL    string
	Name   string
	Weight float64
	items  []model.DiscoveryItem
	seen   map[string]bool
}

// NewSourceQueue creates an empty queue. Weight drives the weighted sampler.
func NewSourceQueue(url, name string, weight float64) *SourceQueue {
	return &SourceQueue{
		URL:    url,
		Name:   name,
		Weight: weight,
		seen:   make(map[string]bool),
	}
}

// Add appends items, skipping ones already queued. Returns the number added.
func (q *SourceQueue) Add(items []model.DiscoveryItem) int {
	added := 0
	for _, item := range items {
		id := item.ID()
		if q.seen[id] {
			continue
		}
		q.seen[id] = true
		q.items = append(q.items, item)
		added++
	}
	return added
}

// Peek returns the item at position i without removing it, or nil.
func (q *SourceQueue) Peek(i int) *model.DiscoveryItem {
	if i < 0 || i >= len(q.items) {
		return nil
	}
	return &q.items[i]
}

// Len returns the number of queued items.
func (q *SourceQueue) Len() int {
	return len(q.items)
}

// All returns the queued items.
func (q *SourceQueue) All() []model.DiscoveryItem {
	return q.items
}

// QueuesFromItems splits items into per-source queues, ordered by each
// source's first appearance. Items without a source share one queue.
func QueuesFromItems(items []model.DiscoveryItem) []*SourceQueue {
	var queues []*SourceQueue
	byURL := make(map[string]*SourceQueue)
	for _, item := range items {
		url, name, weight := "", "", 1.0
		if item.Source != nil {
			url, name = item.Source.URL, item.Source.Name
			weight = 0.5 + model.WeightBucket(item.Source.Weight)
		}
		q, ok := byURL[url]
		if !ok {
			q = NewSourceQueue(url, name, weight)
			byURL[url] = q
			queues = append(queues, q)
		}
		q.Add([]model.DiscoveryItem{item})
	}
	return queues
}

// Interleave regroups items by source and samples all of them back out
// with sampler. A nil sampler uses round-robin.
func Interleave(items []model.DiscoveryItem, sampler Sampler) []model.DiscoveryItem {
	if sampler == nil {
		sampler = NewRoundRobinSampler()
	}
	return sampler.Sample(QueuesFromItems(items), len(items))
}
