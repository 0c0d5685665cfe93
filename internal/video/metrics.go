package video

import (
	"dronefeed/internal/metrics"
	"time"
)

func (sink *StreamSink) CollectMetrics(namespace []string, interval time.Duration) (collection []metrics.Metric) {
	frames := sink.Metrics.Frames.Swap(0)
	written := sink.Metrics.Bytes.Swap(0)
	resyncs := sink.Metrics.Resyncs.Swap(0)
	skipped := sink.Metrics.SkippedBytes.Swap(0)

	recordTime := time.Now()

	collection = []metrics.Metric{
		{
			Name:        "frames_total",
			Description: "Complete PaVE frames extracted from the stream in the interval",
			Namespace:   namespace,
			Value:       metrics.MetricValue{Raw: frames, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "stream_bytes_total",
			Description: "Stream bytes written into the sink in the interval",
			Namespace:   namespace,
			Value:       metrics.MetricValue{Raw: written, Unit: "bytes", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "resyncs_total",
			Description: "Times the sink discarded data to find the next frame signature",
			Namespace:   namespace,
			Value:       metrics.MetricValue{Raw: resyncs, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "skipped_bytes_total",
			Description: "Bytes discarded while resynchronising in the interval",
			Namespace:   namespace,
			Value:       metrics.MetricValue{Raw: skipped, Unit: "bytes", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "buffered_bytes",
			Description: "Bytes held for an incomplete frame",
			Namespace:   namespace,
			Value:       metrics.MetricValue{Raw: uint64(sink.Buffered()), Unit: "bytes", Interval: interval},
			Type:        metrics.Gauge,
			Timestamp:   recordTime,
		},
	}
	return
}
