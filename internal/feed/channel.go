// One-directional latest-wins conveyance between workers
package feed

import (
	"sync/atomic"
)

// Bounded single-producer/single-consumer channel.
// Push never blocks: when full the oldest pending item is discarded.
type Channel[T any] struct {
	Namespace []string
	items     chan T
	Metrics   MetricStorage
}

type MetricStorage struct {
	Pushed   atomic.Uint64 // items accepted by Push
	Dropped  atomic.Uint64 // items discarded before any consumer saw them
	Received atomic.Uint64 // items handed to the consumer as newest
}

func New[T any](namespace []string, capacity int) (new *Channel[T]) {
	if capacity < 1 {
		capacity = 1
	}
	new = &Channel[T]{
		Namespace: namespace,
		items:     make(chan T, capacity),
	}
	return
}

// Enqueues item, evicting the oldest pending item if the channel is full
func (channel *Channel[T]) Push(item T) {
	channel.Metrics.Pushed.Add(1)
	for {
		select {
		case channel.items <- item:
			return
		default:
		}

		select {
		case <-channel.items:
			channel.Metrics.Dropped.Add(1)
		default:
		}
	}
}

// Readiness for select. Receiving from it yields the oldest pending item,
// callers pass that to DrainLatest to get the newest.
func (channel *Channel[T]) Receive() <-chan T {
	return channel.items
}

// Returns the newest pending item, treating first as already received.
// dropped counts the items skipped over.
func (channel *Channel[T]) DrainLatest(first T) (latest T, dropped int) {
	latest = first
	for {
		select {
		case item := <-channel.items:
			latest = item
			dropped++
		default:
			channel.Metrics.Dropped.Add(uint64(dropped))
			channel.Metrics.Received.Add(1)
			return
		}
	}
}

// Non-blocking read of the newest pending item
func (channel *Channel[T]) TryLatest() (latest T, ok bool) {
	select {
	case first := <-channel.items:
		latest, _ = channel.DrainLatest(first)
		ok = true
	default:
	}
	return
}

// Count of pending items
func (channel *Channel[T]) Len() int {
	return len(channel.items)
}
