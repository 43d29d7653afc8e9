package cache

import (
	"fmt"
	"slices"
	"time"

	"github.com/abelbrown/discover/internal/model"
)

// Key identifies one cached explore result. Two loads share a Key only when
// category, page, selected sources, sort mode and restricted flag all match.
type Key struct {
	Category   model.Category
	Page       int
	Sources    []string
	Sort       string
	Restricted bool
}

// String renders the key. All keys of a category share CategoryPrefix.
func (k Key) String() string {
	flag := 0
	if k.Restricted {
		flag = 1
	}
	sorted := slices.Clone(k.Sources)
	slices.Sort(sorted)
	return fmt.Sprintf("%s%d:%s:%s:%d", CategoryPrefix(k.Category), k.Page, model.HashStrings(sorted), k.Sort, flag)
}

// CategoryPrefix is the prefix shared by every explore key of cat.
func CategoryPrefix(cat model.Category) string {
	return "explore:" + string(cat) + ":"
}

// SnapshotKey is where the last good first page of cat is persisted.
func SnapshotKey(cat model.Category) string {
	return "snapshot:" + string(cat)
}

// TTLPolicy resolves how long a result may be served from cache.
type TTLPolicy struct {
	Default     time.Duration
	PerCategory map[model.Category]time.Duration
}

// DefaultTTL applies when neither sources nor category override it.
const DefaultTTL = 10 * time.Minute

// Resolve picks the smallest positive per-source TTL among sources, then the
// category override, then the default.
func (p TTLPolicy) Resolve(cat model.Category, sources []*model.SourceDescriptor) time.Duration {
	var best time.Duration
	for _, src := range sources {
		if src != nil && src.TTL > 0 && (best == 0 || src.TTL < best) {
			best = src.TTL
		}
	}
	if best > 0 {
		return best
	}
	if d, ok := p.PerCategory[cat]; ok && d > 0 {
		return d
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTTL
}
