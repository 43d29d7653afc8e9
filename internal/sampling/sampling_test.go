package sampling

import (
	"fmt"
	"testing"

	"github.com/abelbrown/discover/internal/model"
)

func queueOf(name string, weight float64, n int) *SourceQueue {
	q := NewSourceQueue("https://"+name, name, weight)
	items := make([]model.DiscoveryItem, n)
	for i := range items {
		items[i].Name = fmt.Sprintf("%s-%d", name, i)
		items[i].TocURL = fmt.Sprintf("https://%s/%d", name, i)
	}
	q.Add(items)
	return q
}

func names(items []model.DiscoveryItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestSourceQueueAdd(t *testing.T) {
	q := queueOf("a", 1, 3)
	if q.Len() != 3 {
		t.Fatalf("Expected queue length 3, got %d", q.Len())
	}

	// Adding duplicates should not increase count
	if added := q.Add(q.All()); added != 0 {
		t.Errorf("Expected 0 items added (duplicates), got %d", added)
	}
	if q.Len() != 3 {
		t.Errorf("Expected queue length still 3, got %d", q.Len())
	}
}

func TestSourceQueuePeek(t *testing.T) {
	q := queueOf("a", 1, 2)

	if item := q.Peek(0); item == nil || item.Name != "a-0" {
		t.Errorf("Expected first item, got %v", item)
	}
	if item := q.Peek(2); item != nil {
		t.Errorf("Expected nil for out of bounds, got %v", item)
	}
	if item := q.Peek(-1); item != nil {
		t.Errorf("Expected nil for negative index, got %v", item)
	}
}

func TestRoundRobinSampler(t *testing.T) {
	queues := []*SourceQueue{queueOf("a", 1, 5), queueOf("b", 1, 2), queueOf("c", 1, 1)}

	got := names(NewRoundRobinSampler().Sample(queues, 6))
	want := []string{"a-0", "b-0", "c-0", "a-1", "b-1", "a-2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRoundRobinMaxPerSource(t *testing.T) {
	queues := []*SourceQueue{queueOf("a", 1, 5), queueOf("b", 1, 5)}
	s := &RoundRobinSampler{MaxPerSource: 2}

	got := s.Sample(queues, 10)
	if len(got) != 4 {
		t.Errorf("Expected 4 items with cap 2 per source, got %d", len(got))
	}
}

func TestRoundRobinExhausts(t *testing.T) {
	queues := []*SourceQueue{queueOf("a", 1, 2), queueOf("b", 1, 1)}
	if got := NewRoundRobinSampler().Sample(queues, 100); len(got) != 3 {
		t.Errorf("Expected all 3 items, got %d", len(got))
	}
	if got := NewRoundRobinSampler().Sample(nil, 5); got != nil {
		t.Errorf("Expected nil for no queues, got %v", got)
	}
}

func TestWeightedRoundRobinSampler(t *testing.T) {
	heavy := queueOf("heavy", 2, 20)
	light := queueOf("light", 1, 20)

	got := NewWeightedRoundRobinSampler().Sample([]*SourceQueue{heavy, light}, 12)
	if len(got) != 12 {
		t.Fatalf("Expected 12 items, got %d", len(got))
	}

	counts := map[string]int{}
	for _, it := range got {
		counts[it.Name[:5]]++
	}
	if counts["heavy"] <= counts["light"] {
		t.Errorf("heavy source should get more items: %v", counts)
	}
}

func TestWeightedRoundRobinDrainsLightQueues(t *testing.T) {
	heavy := queueOf("heavy", 4, 2)
	light := queueOf("light", 0.5, 3)

	got := NewWeightedRoundRobinSampler().Sample([]*SourceQueue{heavy, light}, 100)
	if len(got) != 5 {
		t.Errorf("Expected all 5 items, got %d: %v", len(got), names(got))
	}
}

func TestInterleave(t *testing.T) {
	a := &model.SourceDescriptor{URL: "https://a", Name: "a"}
	b := &model.SourceDescriptor{URL: "https://b", Name: "b"}

	var items []model.DiscoveryItem
	for i := 0; i < 3; i++ {
		var it model.DiscoveryItem
		it.Name = fmt.Sprintf("a-%d", i)
		it.TocURL = it.Name
		it.Source = a
		items = append(items, it)
	}
	var bi model.DiscoveryItem
	bi.Name, bi.TocURL, bi.Source = "b-0", "b-0", b
	items = append(items, bi)

	got := names(Interleave(items, nil))
	want := []string{"a-0", "b-0", "a-1", "a-2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{"", "*sampling.RoundRobinSampler", false},
		{"round_robin", "*sampling.RoundRobinSampler", false},
		{" Weighted ", "*sampling.WeightedRoundRobinSampler", false},
		{"shuffle", "", true},
	}
	for _, tt := range tests {
		s, err := New(tt.mode)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v", tt.mode, err)
			continue
		}
		if err == nil && fmt.Sprintf("%T", s) != tt.want {
			t.Errorf("New(%q) = %T, want %s", tt.mode, s, tt.want)
		}
	}
}
