package logctx

import (
	"dronefeed/internal/global"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	dedupWindow      = 5 * time.Second
	minRepeats       = 10
	suppressCooldown = 1 * time.Minute
)

// Hold main thread exit until logger is finished its work
func (logger *Logger) Wait() {
	logger.wg.Wait()

	// Watchers are gone, release any file outputs
	logger.mutex.Lock()
	sinks := logger.sinks
	logger.sinks = nil
	logger.mutex.Unlock()
	for _, sink := range sinks {
		sink.Close()
	}
}

// Wake signals/broadcasts to any goroutines waiting on the condition variable
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.cond.Broadcast()
}

// Starts a go routine that reads events and writes formatted output to io.Writer.
// Stops when logger.Done is closed and the buffer is empty.
func StartWatcher(logger *Logger, output io.Writer) {
	logger.wg.Add(1)

	go func() {
		defer logger.wg.Done()

		var dedup dedupState
		for {
			event, ok := logger.next()
			if !ok {
				return
			}

			if dedup.suppress(output, event, time.Now()) {
				continue
			}

			fmt.Fprintf(output, "%s", event.Format())
		}
	}()
}

// Blocks until an event is available. Returns false once done and drained.
func (logger *Logger) next() (event Event, ok bool) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	for len(logger.queue) == 0 {
		select {
		case <-logger.Done:
			return
		default:
			logger.cond.Wait()
		}
	}

	// Pop one event from the front of the queue
	event = logger.queue[0]
	logger.queue = logger.queue[1:]
	ok = true
	return
}

// Tracks highly repetitive messages. Returns true when the event should not be printed.
// Duplicate events older than the deduplication window are not considered duplicates.
func (dedup *dedupState) suppress(output io.Writer, event Event, now time.Time) (skip bool) {
	if event.Message == "" || event.Message != dedup.lastMsg || now.Sub(event.Timestamp) > dedupWindow {
		// Reset counter if message changes or window exceeded
		dedup.lastMsg = event.Message
		dedup.repeatCount = 1
		return
	}

	dedup.repeatCount++

	// Only print suppression message once per cooldown
	if dedup.repeatCount >= minRepeats && now.Sub(dedup.lastSuppressTime) >= suppressCooldown {
		summary := Event{
			Timestamp: event.Timestamp,
			Tags:      event.Tags,
			Severity:  global.InfoLog,
			Message:   fmt.Sprintf("Suppressed %d repeated messages: %s", dedup.repeatCount, strings.TrimSuffix(dedup.lastMsg, "\n")),
		}
		fmt.Fprintf(output, "%s\n", summary.Format())

		dedup.lastSuppressTime = now
		dedup.repeatCount = 0
	}

	skip = true
	return
}
