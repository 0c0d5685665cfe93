package atomics

import "sync/atomic"

// Raises target to candidate if candidate is larger
func StoreMax(target *atomic.Uint64, candidate uint64) (raised bool) {
	for {
		current := target.Load()
		if candidate <= current {
			return
		}
		if target.CompareAndSwap(current, candidate) {
			raised = true
			return
		}
	}
}

// Records the newest duration and raises max on a new high
func ObserveDuration(last, max *atomic.Uint64, nanoseconds uint64) {
	last.Store(nanoseconds)
	StoreMax(max, nanoseconds)
}
