package relay

import (
	"dronefeed/internal/metrics"
	"time"
)

func (instance *Instance) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	navUpdates := instance.Metrics.NavdataUpdates.Swap(0)
	frameUpdates := instance.Metrics.FrameUpdates.Swap(0)
	skipped := instance.Metrics.Skipped.Swap(0)
	decodes := instance.Metrics.ImageDecodes.Swap(0)
	failures := instance.Metrics.ImageFailures.Swap(0)
	wakes := instance.Metrics.Wakes.Swap(0)
	fps := instance.FrameRate()

	recordTime := time.Now()

	collection = []metrics.Metric{
		{
			Name:        "navdata_updates_total",
			Description: "Telemetry records stored in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: navUpdates, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "frame_updates_total",
			Description: "Video frames stored in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: frameUpdates, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "skipped_total",
			Description: "Records superseded at the relay before being stored in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: skipped, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "image_decodes_total",
			Description: "Frames decoded into pixel buffers in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: decodes, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "image_failures_total",
			Description: "Frames that failed pixel decoding in the interval (previous image kept)",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: failures, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "wakes_total",
			Description: "Relay loop iterations in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: wakes, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "frame_rate",
			Description: "Video frames per second estimated from trimmed arrival gaps",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: fps, Unit: "fps", Interval: interval},
			Type:        metrics.Summary,
			Timestamp:   recordTime,
		},
	}
	return
}
