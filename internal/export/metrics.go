package export

import (
	"dronefeed/internal/metrics"
	"time"
)

func (worker *Worker) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	published := worker.Metrics.Published.Swap(0)
	failed := worker.Metrics.Failed.Swap(0)
	recordTime := time.Now()

	collection = []metrics.Metric{
		{
			Name:        "published_total",
			Description: "Messages accepted by the destination in the interval",
			Namespace:   worker.Namespace,
			Value:       metrics.MetricValue{Raw: published, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "failed_total",
			Description: "Messages the destination rejected or timed out on in the interval",
			Namespace:   worker.Namespace,
			Value:       metrics.MetricValue{Raw: failed, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
	}
	collection = append(collection, worker.navQueue.CollectMetrics(interval)...)
	collection = append(collection, worker.frameQueue.CollectMetrics(interval)...)
	return
}
