// Package otel records structured pipeline events for discover.
//
// Events are typed structs written as JSONL lines. The Logger writes them
// asynchronously through a buffered channel and a background drain
// goroutine. An optional RingBuffer keeps the most recent events in memory
// so the CLI can summarize a run without re-reading the file.
package otel

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Page loads
	KindLoadStart     EventKind = "load.start"
	KindLoadComplete  EventKind = "load.complete"
	KindLoadThrottled EventKind = "load.throttled"

	// Per-source fetches
	KindFetchStart    EventKind = "fetch.start"
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"

	// Cache
	KindCacheHit   EventKind = "cache.hit"
	KindCacheMiss  EventKind = "cache.miss"
	KindCacheEvict EventKind = "cache.evict"
	KindCacheError EventKind = "cache.error"
	KindCacheSweep EventKind = "cache.sweep"

	// Pipeline stages
	KindClassifyConflict EventKind = "classify.conflict"
	KindFilterExcluded   EventKind = "filter.excluded"
	KindDedupComplete    EventKind = "dedup.complete"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Subsystem returns the part of the kind before the dot.
func (k EventKind) Subsystem() string {
	s, _, _ := strings.Cut(string(k), ".")
	return s
}

// Event is the universal record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"` // "coord", "fetch", "cache", "main"
	SessionID string         `json:"session_id,omitempty"`
	LoadID    string         `json:"load_id,omitempty"` // correlates the events of one page load
	Category  string         `json:"category,omitempty"`
	Page      int            `json:"page,omitempty"`
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Source    string         `json:"source,omitempty"`
	Key       string         `json:"key,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON converts Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// UnmarshalJSON restores Dur from DurMs.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)
	if e.DurMs > 0 {
		e.Dur = time.Duration(e.DurMs * float64(time.Millisecond))
	}
	return nil
}

// NewLoadID returns a fresh correlation ID for one page load.
func NewLoadID() string {
	return uuid.NewString()
}
