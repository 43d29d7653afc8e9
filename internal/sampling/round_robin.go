package sampling

import (
	"fmt"
	"strings"

	"github.com/abelbrown/discover/internal/model"
)

// Sampler picks up to n items across source queues.
type Sampler interface {
	Sample(queues []*SourceQueue, n int) []model.DiscoveryItem
}

// Sampler names accepted by New.
const (
	ModeRoundRobin = "round_robin"
	ModeWeighted   = "weighted"
)

// New returns the sampler registered under mode. Empty means round-robin.
func New(mode string) (Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeRoundRobin:
		return NewRoundRobinSampler(), nil
	case ModeWeighted:
		return NewWeightedRoundRobinSampler(), nil
	}
	return nil, fmt.Errorf("sampling: unknown mode %q", mode)
}

// RoundRobinSampler deals one item per source per pass.
type RoundRobinSampler struct {
	MaxPerSource int // 0 = unlimited
}

func NewRoundRobinSampler() *RoundRobinSampler {
	return &RoundRobinSampler{}
}

func (s *RoundRobinSampler) Sample(queues []*SourceQueue, n int) []model.DiscoveryItem {
	if len(queues) == 0 || n <= 0 {
		return nil
	}
	out := make([]model.DiscoveryItem, 0, n)
	for pass := 0; len(out) < n; pass++ {
		if s.MaxPerSource > 0 && pass >= s.MaxPerSource {
			break
		}
		dealt := false
		for _, q := range queues {
			it := q.Peek(pass)
			if it == nil {
				continue
			}
			out = append(out, *it)
			dealt = true
			if len(out) == n {
				break
			}
		}
		if !dealt {
			break
		}
	}
	return out
}

// WeightedRoundRobinSampler deals items in proportion to queue weight:
// each pass a queue earns weight/avgWeight credit and spends one credit
// per item. Queues below MinWeight are skipped.
type WeightedRoundRobinSampler struct {
	MinWeight float64
}

func NewWeightedRoundRobinSampler() *WeightedRoundRobinSampler {
	return &WeightedRoundRobinSampler{MinWeight: 0.1}
}

func (s *WeightedRoundRobinSampler) Sample(queues []*SourceQueue, n int) []model.DiscoveryItem {
	if len(queues) == 0 || n <= 0 {
		return nil
	}

	eligible := func(q *SourceQueue) bool { return q.Weight >= s.MinWeight }
	var sum float64
	count := 0
	for _, q := range queues {
		if eligible(q) && q.Len() > 0 {
			sum += q.Weight
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)

	out := make([]model.DiscoveryItem, 0, n)
	next := make([]int, len(queues))
	credit := make([]float64, len(queues))
	for len(out) < n {
		live := false
		for i, q := range queues {
			if !eligible(q) || next[i] >= q.Len() {
				continue
			}
			live = true
			credit[i] += q.Weight / avg
			for ; credit[i] >= 1 && next[i] < q.Len() && len(out) < n; credit[i]-- {
				out = append(out, *q.Peek(next[i]))
				next[i]++
			}
		}
		// A light queue may need several passes to earn one item.
		if !live {
			break
		}
	}
	return out
}
