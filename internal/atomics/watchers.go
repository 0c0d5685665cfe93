// Helper functions that deal with atomic variables and their values
package atomics

import (
	"sync/atomic"
	"time"
)

// Polls until value reads zero streak times in a row or timeout elapses.
// Polling backs off exponentially from 10ms up to 500ms.
func WaitUntilZero(value *atomic.Int64, timeout time.Duration, streak int) (reachedZero bool, lastValue int64) {
	if streak < 1 {
		streak = 1
	}

	backoff := 10 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	deadline := time.Now().Add(timeout)
	zeroStreak := 0

	for {
		lastValue = value.Load()
		if lastValue == 0 {
			zeroStreak++
			if zeroStreak >= streak {
				reachedZero = true
				return
			}
		} else {
			zeroStreak = 0
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(min(backoff, remaining))
		backoff = min(backoff*2, maxBackoff)
	}
}
