package sim

import (
	"log"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// SetDebug toggles verbose per-push logging.
func SetDebug(on bool) {
	debugEnabled.Store(on)
}

func logDebugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf(format, args...)
	}
}
