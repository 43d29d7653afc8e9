package otel

import (
	"sync"
	"testing"
)

func TestPushAndSnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	for i := 0; i < 5; i++ {
		r.Push(Event{Kind: KindFetchStart, Count: i})
	}

	snap := r.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 events, got %d", len(snap))
	}
	for i, e := range snap {
		if e.Count != i {
			t.Errorf("snap[%d].Count=%d, want %d", i, e.Count, i)
		}
	}
}

func TestWrapAround(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 10; i++ {
		r.Push(Event{Kind: KindCacheHit, Count: i})
	}

	snap := r.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 events, got %d", len(snap))
	}
	for i, e := range snap {
		if want := i + 6; e.Count != want {
			t.Errorf("snap[%d].Count=%d, want %d", i, e.Count, want)
		}
	}
}

func TestLast(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 6; i++ {
		r.Push(Event{Kind: KindFetchStart, Count: i})
	}

	tests := []struct {
		n    int
		want []int
	}{
		{2, []int{4, 5}},
		{4, []int{2, 3, 4, 5}},
		{10, []int{2, 3, 4, 5}},
		{0, nil},
		{-1, nil},
	}
	for _, tt := range tests {
		got := r.Last(tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Last(%d) returned %d events, want %d", tt.n, len(got), len(tt.want))
			continue
		}
		for i, e := range got {
			if e.Count != tt.want[i] {
				t.Errorf("Last(%d)[%d].Count=%d, want %d", tt.n, i, e.Count, tt.want[i])
			}
		}
	}
}

func TestByPrefix(t *testing.T) {
	r := NewRingBuffer(16)
	r.Push(Event{Kind: KindFetchStart})
	r.Push(Event{Kind: KindCacheMiss})
	r.Push(Event{Kind: KindFetchError})
	r.Push(Event{Kind: KindLoadComplete})

	fetches := r.ByPrefix("fetch.")
	if len(fetches) != 2 || fetches[0].Kind != KindFetchStart || fetches[1].Kind != KindFetchError {
		t.Errorf("unexpected fetch events: %+v", fetches)
	}
	if got := r.ByPrefix("dedup."); len(got) != 0 {
		t.Errorf("expected no dedup events, got %d", len(got))
	}
}

func TestStats(t *testing.T) {
	r := NewRingBuffer(3)
	r.Push(Event{Kind: KindFetchStart})
	r.Push(Event{Kind: KindFetchStart})
	r.Push(Event{Kind: KindCacheHit})
	r.Push(Event{Kind: KindCacheHit}) // overwrites the first fetch.start

	stats := r.Stats()
	if stats[KindFetchStart] != 1 || stats[KindCacheHit] != 2 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestEmptyRing(t *testing.T) {
	r := NewRingBuffer(0)
	if r.Cap() != DefaultRingSize {
		t.Errorf("Cap()=%d, want %d", r.Cap(), DefaultRingSize)
	}
	if r.Len() != 0 || r.Snapshot() != nil {
		t.Error("new ring should be empty")
	}
}

func TestExtraCopied(t *testing.T) {
	r := NewRingBuffer(2)
	extra := map[string]any{"sources": 3}
	r.Push(Event{Kind: KindLoadStart, Extra: extra})
	extra["sources"] = 99

	if got := r.Snapshot()[0].Extra["sources"]; got != 3 {
		t.Errorf("ring copy changed with caller map: %v", got)
	}
}

func TestConcurrentPushSnapshot(t *testing.T) {
	r := NewRingBuffer(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Event{Kind: KindFetchComplete})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = r.Snapshot()
				_ = r.Stats()
			}
		}()
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len()=%d, want 64", r.Len())
	}
}
