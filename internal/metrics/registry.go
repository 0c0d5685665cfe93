// Central registry for storing time-based metrics
package metrics

import (
	"strings"
	"time"
)

// Creates new metric registry storage
func New() (new *Registry) {
	new = &Registry{
		metrics: make(map[time.Time]map[string]map[string]Metric),
	}
	return
}

// Returns the slice key for now, creating the slice if needed
func (registry *Registry) NewTimeSlice(now time.Time, interval time.Duration) (timeSlice time.Time) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	timeSlice = now
	if interval > 0 {
		timeSlice = now.Truncate(interval)
	}
	if registry.metrics[timeSlice] == nil {
		registry.metrics[timeSlice] = make(map[string]map[string]Metric)
	}
	return
}

// Adds batch of metrics to an existing time slice, later values replace earlier ones
func (registry *Registry) Add(timeSlice time.Time, batch []Metric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	slice, ok := registry.metrics[timeSlice]
	if !ok {
		return
	}

	for _, metric := range batch {
		namespace := strings.Join(metric.Namespace, "/")
		if slice[namespace] == nil {
			slice[namespace] = make(map[string]Metric)
		}
		slice[namespace][metric.Name] = metric
	}
}

// Deletes time slices older than maxAge relative to currentTime
func (registry *Registry) Prune(currentTime time.Time, maxAge time.Duration) (removed int) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for timeSlice := range registry.metrics {
		if currentTime.Sub(timeSlice) > maxAge {
			delete(registry.metrics, timeSlice)
			removed++
		}
	}
	return
}

// Most recent value of a metric by exact namespace and name
func (registry *Registry) Latest(name string, namespace []string) (latest Metric, found bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	key := strings.Join(namespace, "/")
	var newest time.Time
	for timeSlice, slice := range registry.metrics {
		metric, ok := slice[key][name]
		if !ok {
			continue
		}
		if !found || timeSlice.After(newest) {
			latest = metric
			newest = timeSlice
			found = true
		}
	}
	return
}
