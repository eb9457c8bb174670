// Package memory implements the store-wide allocation ledger. Sizes are
// accounted at the object boundary rather than through allocator hooks:
// every tracked allocation is rounded up to the machine word and charged to
// a shared counter, with a high-water mark kept alongside. The ledger is the
// input for the configured memory ceiling and for the statistics surface.
package memory

import (
	"runtime"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"
)

const wordSize = 8

var (
	used = xsync.NewCounter()
	peak atomic.Int64
)

// Round returns n rounded up to the machine word, the charge applied to
// every tracked allocation.
func Round(n int) int64 {
	if n <= 0 {
		return 0
	}
	return (int64(n) + wordSize - 1) &^ (wordSize - 1)
}

// Track charges n bytes to the ledger.
func Track(n int64) {
	used.Add(n)
	if u := used.Value(); u > peak.Load() {
		peak.Store(u)
	}
}

// Untrack releases n bytes from the ledger.
func Untrack(n int64) {
	used.Add(-n)
}

// Used returns the tracked byte count.
func Used() int64 {
	return used.Value()
}

// Peak returns the highest tracked byte count observed.
func Peak() int64 {
	return peak.Load()
}

// Reset zeroes the ledger. Only load paths that rebuild the whole keyspace
// use it.
func Reset() {
	used.Reset()
	peak.Store(0)
}

// RSS returns the peak resident set size of the process in bytes as
// reported by getrusage (ru_maxrss), or 0 when it cannot be read.
func RSS() int64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	// ru_maxrss is in kilobytes on Linux
	return ru.Maxrss * 1024
}

// HeapInUse returns the Go heap bytes in active use.
func HeapInUse() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapInuse)
}

// FragmentationRatio returns RSS divided by the tracked usage, the usual
// health indicator for allocator overhead. It returns 0 when either input
// is unavailable.
func FragmentationRatio() float64 {
	u := Used()
	r := RSS()
	if u == 0 || r == 0 {
		return 0
	}
	return float64(r) / float64(u)
}
