package feed

import (
	"dronefeed/internal/metrics"
	"time"
)

func (channel *Channel[T]) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	pushed := channel.Metrics.Pushed.Swap(0)
	dropped := channel.Metrics.Dropped.Swap(0)
	received := channel.Metrics.Received.Swap(0)

	recordTime := time.Now()

	collection = []metrics.Metric{
		{
			Name:        "pushed_total",
			Description: "Items pushed by the producer in the interval",
			Namespace:   channel.Namespace,
			Value:       metrics.MetricValue{Raw: pushed, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "dropped_total",
			Description: "Items superseded before the consumer used them in the interval",
			Namespace:   channel.Namespace,
			Value:       metrics.MetricValue{Raw: dropped, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "received_total",
			Description: "Newest items taken by the consumer in the interval",
			Namespace:   channel.Namespace,
			Value:       metrics.MetricValue{Raw: received, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "depth",
			Description: "Items pending at collection time",
			Namespace:   channel.Namespace,
			Value:       metrics.MetricValue{Raw: uint64(channel.Len()), Unit: "count", Interval: interval},
			Type:        metrics.Gauge,
			Timestamp:   recordTime,
		},
	}
	return
}
