package metrics

import (
	"sync"
	"time"
)

// Time sliced metric storage: slice start -> joined namespace -> metric name
type Registry struct {
	mu      sync.RWMutex
	metrics map[time.Time]map[string]map[string]Metric
}

type MetricType string

const (
	Counter MetricType = "counter" // events within the interval
	Gauge   MetricType = "gauge"   // point in time level
	Summary MetricType = "summary" // avg/max/percent derived in the interval
)

// Container for a metric and associated data
type Metric struct {
	Name        string   // e.g. datagrams_total, depth
	Description string
	Namespace   []string // e.g. "Collector/Navdata"
	Value       MetricValue
	Type        MetricType
	Timestamp   time.Time // time when the metric was recorded
}

// Specific value of a metric
type MetricValue struct {
	Raw      any           // uint64, float64
	Unit     string        // e.g. "ns", "bytes", "count", "fps"
	Interval time.Duration // measurement window
}

// Anything that reports metrics on each collection tick
type Collector interface {
	CollectMetrics(interval time.Duration) []Metric
}

// JSON version
type JMetric struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Namespace   string       `json:"namespace"`
	Value       JMetricValue `json:"value"`
	Type        string       `json:"type"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type JMetricValue struct {
	Raw      string `json:"raw,omitempty"`
	Unit     string `json:"unit"`
	Interval string `json:"interval,omitempty"`
}
