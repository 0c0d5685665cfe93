package collector

import (
	"dronefeed/internal/global"
	"dronefeed/internal/metrics"
	"time"
)

func (instance *Instance) CollectMetrics(interval time.Duration) (collection []metrics.Metric) {
	wakes := instance.Metrics.Wakes.Swap(0)
	busyNs := instance.Metrics.BusyNs.Swap(0)
	navDatagrams := instance.Metrics.NavDatagrams.Swap(0)
	navDecoded := instance.Metrics.NavDecoded.Swap(0)
	videoDatagrams := instance.Metrics.VideoDatagrams.Swap(0)
	videoFrames := instance.Metrics.VideoFrames.Swap(0)
	maxDrain := instance.Metrics.MaxDrainReads.Swap(0)
	maxDecodeNs := instance.Metrics.MaxDecodeNs.Swap(0)
	lastDecodeNs := instance.Metrics.LastDecodeNs.Load()

	recordTime := time.Now()
	busyPct := (float64(busyNs) / float64(interval.Nanoseconds())) * 100

	navNS := append(append([]string{}, instance.Namespace...), global.NSNavdata)
	videoNS := append(append([]string{}, instance.Namespace...), global.NSVideo)

	collection = []metrics.Metric{
		{
			Name:        "busy_time_percent",
			Description: "Time spent servicing ready sockets in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: busyPct, Unit: "%", Interval: interval},
			Type:        metrics.Summary,
			Timestamp:   recordTime,
		},
		{
			Name:        "wakes_total",
			Description: "Returns from the multiplexed wait in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: wakes, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "drain_reads_max",
			Description: "Most reads performed by a single drain in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: maxDrain, Unit: "count", Interval: interval},
			Type:        metrics.Summary,
			Timestamp:   recordTime,
		},
		{
			Name:        "decode_time_max_ns",
			Description: "Slowest decode in the interval",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: maxDecodeNs, Unit: "ns", Interval: interval},
			Type:        metrics.Summary,
			Timestamp:   recordTime,
		},
		{
			Name:        "decode_time_last_ns",
			Description: "Duration of the most recent decode",
			Namespace:   instance.Namespace,
			Value:       metrics.MetricValue{Raw: lastDecodeNs, Unit: "ns", Interval: interval},
			Type:        metrics.Gauge,
			Timestamp:   recordTime,
		},
		{
			Name:        "datagrams_total",
			Description: "Navdata datagrams read in the interval",
			Namespace:   navNS,
			Value:       metrics.MetricValue{Raw: navDatagrams, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "decoded_total",
			Description: "Navdata records forwarded in the interval",
			Namespace:   navNS,
			Value:       metrics.MetricValue{Raw: navDecoded, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "reads_total",
			Description: "Video datagrams or stream chunks read in the interval",
			Namespace:   videoNS,
			Value:       metrics.MetricValue{Raw: videoDatagrams, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
		{
			Name:        "frames_total",
			Description: "Video frames forwarded in the interval",
			Namespace:   videoNS,
			Value:       metrics.MetricValue{Raw: videoFrames, Unit: "count", Interval: interval},
			Type:        metrics.Counter,
			Timestamp:   recordTime,
		},
	}

	stream, ok := instance.video.(*streamVideo)
	if ok {
		sinkNS := append(append([]string{}, videoNS...), "Sink")
		collection = append(collection, stream.sink.CollectMetrics(sinkNS, interval)...)
	}
	return
}

// Time of the newest forwarded record per feed, zero when none yet
func (instance *Instance) LastForwarded() (navdataAt, videoAt time.Time) {
	if ns := instance.Metrics.LastNavdataUnix.Load(); ns > 0 {
		navdataAt = time.Unix(0, ns)
	}
	if ns := instance.Metrics.LastVideoUnix.Load(); ns > 0 {
		videoAt = time.Unix(0, ns)
	}
	return
}
