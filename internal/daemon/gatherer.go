package daemon

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/metrics"
	"runtime/debug"
	"time"
)

func NewGatherer(components []metrics.Collector, interval time.Duration, maximumMetricAge time.Duration) (new *Gatherer) {
	new = &Gatherer{
		Registry:   metrics.New(),
		Components: components,
		Interval:   interval,
		Retention:  maximumMetricAge,
	}
	return
}

func (gatherer *Gatherer) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSMetric)

	// Track last run times for each interval
	lastRun := time.Now()

	ticker := time.NewTicker(gatherer.Interval / 2) // Use polling interval half of desired record interval
	defer ticker.Stop()

	// Counter to track how many ticks have passed (for retention)
	var tickCount int

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(lastRun) >= gatherer.Interval {
				lastRun = now
				gatherer.collect(ctx, now)
			}

			tickCount++
			if tickCount >= 30 {
				removed := gatherer.Registry.Prune(now, gatherer.Retention)
				if removed > 0 {
					logctx.LogEvent(ctx, global.VerbosityDebug, global.InfoLog, "Pruned %d metric time slices\n", removed)
				}
				tickCount = 0
			}
		}
	}
}

// Reads every component into a new time slice.
// A panicking component is logged and skipped until the next interval.
func (gatherer *Gatherer) collect(ctx context.Context, now time.Time) {
	timeSlice := gatherer.Registry.NewTimeSlice(now, gatherer.Interval)

	for _, component := range gatherer.Components {
		func() {
			defer func() {
				if fatalError := recover(); fatalError != nil {
					logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
						"panic in metric collection: %v\n%s", fatalError, debug.Stack())
				}
			}()
			gatherer.Registry.Add(timeSlice, component.CollectMetrics(gatherer.Interval))
		}()
	}
}
