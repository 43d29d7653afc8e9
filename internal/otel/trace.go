package otel

import (
	"os"
	"sync/atomic"
)

// debugEnabled gates debug-level events. Atomic so tests can flip it while
// loads are running.
var debugEnabled atomic.Bool

func init() {
	debugEnabled.Store(os.Getenv("DISCOVER_TRACE") != "")
}

// DebugEnabled reports whether debug-level events are recorded.
// Set DISCOVER_TRACE to enable them; per-item events are debug level.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetDebug overrides DISCOVER_TRACE, e.g. for a --verbose flag.
func SetDebug(v bool) {
	debugEnabled.Store(v)
}
