// Package cache is the two-tier result cache for explore pages: a bounded
// in-memory tier in front of a persistent key-value tier.
//
// Reads check memory first and fall back to the persistent tier, promoting
// hits back into memory. Entries expire lazily on read; EvictExpired sweeps
// them eagerly. When the memory tier grows past its high-water mark, expired
// entries go first and then the least valuable entries (by access frequency
// minus hours since last access) until it is back under the low-water mark.
package cache

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/discover/internal/logging"
	"github.com/abelbrown/discover/internal/model"
)

// Capacity marks as fractions of the configured capacity.
const (
	HighWaterRatio = 0.9
	LowWaterRatio  = 0.8
)

// DefaultCapacity is the memory tier size when none is configured.
const DefaultCapacity = 200

// PersistentKV is the durable tier. Get reports ok=false on a miss.
type PersistentKV interface {
	Get(key string) (value []byte, ok bool, err error)
	Put(key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(prefix string) (int64, error)
}

// EvictReason says why an entry left the memory tier.
type EvictReason string

const (
	EvictExpired  EvictReason = "expired"
	EvictCapacity EvictReason = "capacity"
)

// Options configure a Store.
type Options struct {
	Capacity int
	Policy   TTLPolicy
	KV       PersistentKV // optional
	Now      func() time.Time
	// OnEvict runs with the store locked and must not call back into it.
	OnEvict func(key string, reason EvictReason)
}

// Stats summarize the memory tier.
type Stats struct {
	ItemCount      int
	ExpiredCount   int
	ApproxMemoryKB int
	Snapshots      int
	Hits           int64
	Misses         int64
}

// envelope is the persisted form of an entry.
type envelope struct {
	CreatedAt time.Time             `json:"created_at"`
	TTLMillis int64                 `json:"ttl_ms"`
	Items     []model.DiscoveryItem `json:"items"`
}

type entry struct {
	items      []model.DiscoveryItem
	created    time.Time
	ttl        time.Duration
	lastAccess time.Time
	frequency  int
	size       int
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && !now.Before(e.created.Add(e.ttl))
}

// score ranks entries for eviction; lower goes first.
func (e *entry) score(now time.Time) float64 {
	return float64(e.frequency) - now.Sub(e.lastAccess).Hours()
}

// Store is the cache service. All state, memory and persistent, is guarded
// by one mutex.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	snapshots map[model.Category][]model.DiscoveryItem

	kv       PersistentKV
	capacity int
	policy   TTLPolicy
	now      func() time.Time
	onEvict  func(string, EvictReason)

	hits, misses int64
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		entries:   make(map[string]*entry),
		snapshots: make(map[model.Category][]model.DiscoveryItem),
		kv:        opts.KV,
		capacity:  opts.Capacity,
		policy:    opts.Policy,
		now:       opts.Now,
		onEvict:   opts.OnEvict,
	}
}

// Policy returns the TTL policy the store was built with.
func (s *Store) Policy() TTLPolicy {
	return s.policy
}

// Get returns the cached items for key. Expired entries are removed and
// reported as a miss. Persistent hits are promoted into memory.
func (s *Store) Get(key string) ([]model.DiscoveryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok {
		if e.expired(now) {
			s.remove(key, EvictExpired)
		} else {
			e.frequency++
			e.lastAccess = now
			s.hits++
			return clone(e.items), true
		}
	}

	e, ok := s.loadPersistent(key, now)
	if !ok {
		s.misses++
		return nil, false
	}
	s.entries[key] = e
	s.hits++
	s.maybeEvict(now)
	return clone(e.items), true
}

// loadPersistent reads key from the persistent tier. Caller holds s.mu.
func (s *Store) loadPersistent(key string, now time.Time) (*entry, bool) {
	if s.kv == nil {
		return nil, false
	}
	data, ok, err := s.kv.Get(key)
	if err != nil {
		logging.Warn("cache: persistent read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn("cache: bad persistent entry", "key", key, "error", err)
		return nil, false
	}
	e := &entry{
		items:      env.Items,
		created:    env.CreatedAt,
		ttl:        time.Duration(env.TTLMillis) * time.Millisecond,
		lastAccess: now,
		frequency:  1,
		size:       approxSize(env.Items),
	}
	if e.expired(now) {
		return nil, false
	}
	return e, true
}

// Put stores items under key in both tiers. A ttl <= 0 uses the policy default.
func (s *Store) Put(key string, items []model.DiscoveryItem, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.policy.Resolve("", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := &entry{
		items:      clone(items),
		created:    now,
		ttl:        ttl,
		lastAccess: now,
		frequency:  1,
		size:       approxSize(items),
	}
	s.entries[key] = e

	if s.kv != nil {
		data, err := json.Marshal(envelope{CreatedAt: now, TTLMillis: ttl.Milliseconds(), Items: e.items})
		if err == nil {
			err = s.kv.Put(key, data, ttl)
		}
		if err != nil {
			logging.Warn("cache: persistent write failed", "key", key, "error", err)
		}
	}

	s.maybeEvict(now)
}

// maybeEvict enforces the capacity marks. Caller holds s.mu.
func (s *Store) maybeEvict(now time.Time) {
	if float64(len(s.entries)) <= HighWaterRatio*float64(s.capacity) {
		return
	}
	s.evictExpired(now)
	if len(s.entries) > s.capacity {
		s.evictTo(int(LowWaterRatio*float64(s.capacity)), now)
	}
}

// EvictExpired removes every expired memory entry and returns how many.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictExpired(s.now())
}

func (s *Store) evictExpired(now time.Time) int {
	n := 0
	for key, e := range s.entries {
		if e.expired(now) {
			s.remove(key, EvictExpired)
			n++
		}
	}
	return n
}

// EvictToCapacity trims the memory tier to the low-water mark if it is over
// capacity. Returns the number of entries removed.
func (s *Store) EvictToCapacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	before := len(s.entries)
	s.evictExpired(now)
	if len(s.entries) > s.capacity {
		s.evictTo(int(LowWaterRatio*float64(s.capacity)), now)
	}
	return before - len(s.entries)
}

// evictTo drops the lowest scoring entries until at most target remain.
// Ties evict the least recently accessed first.
func (s *Store) evictTo(target int, now time.Time) {
	if len(s.entries) <= target {
		return
	}
	type candidate struct {
		key   string
		score float64
		last  time.Time
	}
	cands := make([]candidate, 0, len(s.entries))
	for key, e := range s.entries {
		cands = append(cands, candidate{key, e.score(now), e.lastAccess})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		if !cands[i].last.Equal(cands[j].last) {
			return cands[i].last.Before(cands[j].last)
		}
		return cands[i].key < cands[j].key
	})
	for _, c := range cands[:len(cands)-target] {
		s.remove(c.key, EvictCapacity)
	}
}

func (s *Store) remove(key string, reason EvictReason) {
	delete(s.entries, key)
	if s.onEvict != nil {
		s.onEvict(key, reason)
	}
}

// DeletePrefix removes every entry whose key starts with prefix from both
// tiers. Returns the number of memory entries removed.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePrefix(prefix)
}

func (s *Store) deletePrefix(prefix string) int {
	n := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			n++
		}
	}
	if s.kv != nil {
		if _, err := s.kv.DeleteByPrefix(prefix); err != nil {
			logging.Warn("cache: persistent delete failed", "prefix", prefix, "error", err)
		}
	}
	return n
}

// DeleteCategory drops every cached page and the snapshot of cat.
func (s *Store) DeleteCategory(cat model.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, cat)
	n := s.deletePrefix(CategoryPrefix(cat))
	s.deletePrefix(SnapshotKey(cat))
	return n
}

// Clear empties both tiers, snapshots included.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.snapshots = make(map[model.Category][]model.DiscoveryItem)
	s.hits, s.misses = 0, 0
	if s.kv != nil {
		if _, err := s.kv.DeleteByPrefix(""); err != nil {
			logging.Warn("cache: persistent clear failed", "error", err)
		}
	}
}

// PutSnapshot records the last good first page of cat for cold starts.
func (s *Store) PutSnapshot(cat model.Category, items []model.DiscoveryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[cat] = clone(items)
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(envelope{CreatedAt: s.now(), Items: items})
	if err == nil {
		err = s.kv.Put(SnapshotKey(cat), data, 0)
	}
	if err != nil {
		logging.Warn("cache: snapshot write failed", "category", cat, "error", err)
	}
}

// Snapshot returns the last recorded first page of cat, from memory or the
// persistent tier. Snapshots never expire.
func (s *Store) Snapshot(cat model.Category) ([]model.DiscoveryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if items, ok := s.snapshots[cat]; ok {
		return clone(items), true
	}
	if s.kv == nil {
		return nil, false
	}
	data, ok, err := s.kv.Get(SnapshotKey(cat))
	if err != nil || !ok {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	s.snapshots[cat] = env.Items
	return clone(env.Items), true
}

// Stats reports the memory tier. Expired entries still held are counted.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := Stats{
		ItemCount: len(s.entries),
		Snapshots: len(s.snapshots),
		Hits:      s.hits,
		Misses:    s.misses,
	}
	bytes := 0
	for _, e := range s.entries {
		if e.expired(now) {
			st.ExpiredCount++
		}
		bytes += e.size
	}
	st.ApproxMemoryKB = (bytes + 1023) / 1024
	return st
}

func clone(items []model.DiscoveryItem) []model.DiscoveryItem {
	if items == nil {
		return nil
	}
	out := make([]model.DiscoveryItem, len(items))
	copy(out, items)
	return out
}

// approxSize estimates the memory held by items from their string fields.
func approxSize(items []model.DiscoveryItem) int {
	const perItem = 128
	n := 0
	for _, it := range items {
		n += perItem + len(it.Name) + len(it.Author) + len(it.Kind) + len(it.Intro) +
			len(it.OriginURL) + len(it.TocURL) + len(it.CoverURL) + len(it.LatestChapter) + len(it.WordCount)
		for _, alt := range it.AltSources {
			n += len(alt)
		}
	}
	return n
}
