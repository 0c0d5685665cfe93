package metrics

import (
	"slices"
	"strings"
	"time"
)

// Exact or prefix namespace match, empty query matches all
func matchesNamespace(metricNS, queryNS []string) bool {
	if len(metricNS) < len(queryNS) {
		return false
	}
	return slices.Equal(metricNS[:len(queryNS)], queryNS)
}

// Returns metrics matching exact name (empty for all) under namespacePrefix,
// oldest time slice first. Zero start/end leave that side of the window open.
func (registry *Registry) Search(name string, namespacePrefix []string, start, end time.Time) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var timestamps []time.Time
	for ts := range registry.metrics {
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		timestamps = append(timestamps, ts)
	}
	slices.SortFunc(timestamps, func(a, b time.Time) int { return a.Compare(b) })

	for _, ts := range timestamps {
		slice := registry.metrics[ts]

		namespaces := make([]string, 0, len(slice))
		for ns := range slice {
			namespaces = append(namespaces, ns)
		}
		slices.Sort(namespaces)

		for _, ns := range namespaces {
			if !matchesNamespace(strings.Split(ns, "/"), namespacePrefix) {
				continue
			}
			for metricName, metric := range slice[ns] {
				if name == "" || metricName == name {
					results = append(results, metric)
				}
			}
		}
	}
	return
}

// Filter for Discover, empty fields match everything
type DiscoverFilter struct {
	Name        string // substring
	Description string // substring
	Namespace   []string
	Unit        string
	Type        MetricType
}

// Lists distinct metric definitions (no values or times), sorted by name then namespace
func (registry *Registry) Discover(filter DiscoverFilter) (results []Metric) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]struct{})
	results = []Metric{}

	for _, slice := range registry.metrics {
		for ns, byName := range slice {
			if !matchesNamespace(strings.Split(ns, "/"), filter.Namespace) {
				continue
			}

			for _, metric := range byName {
				if !strings.Contains(metric.Name, filter.Name) ||
					!strings.Contains(metric.Description, filter.Description) {
					continue
				}
				if filter.Unit != "" && metric.Value.Unit != filter.Unit {
					continue
				}
				if filter.Type != "" && metric.Type != filter.Type {
					continue
				}

				key := ns + "|" + metric.Name + "|" + string(metric.Type) + "|" + metric.Value.Unit
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				results = append(results, Metric{
					Name:        metric.Name,
					Description: metric.Description,
					Namespace:   metric.Namespace,
					Type:        metric.Type,
					Value:       MetricValue{Unit: metric.Value.Unit},
				})
			}
		}
	}

	slices.SortFunc(results, func(a, b Metric) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(strings.Join(a.Namespace, "/"), strings.Join(b.Namespace, "/"))
	})
	return
}
