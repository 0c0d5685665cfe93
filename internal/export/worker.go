// Relay sinks forwarding the newest records to external systems
package export

import (
	"context"
	"dronefeed/internal/atomics"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"fmt"
	"time"
)

func NewWorker(namespace []string, name string, publisher Publisher, options Options) (new *Worker) {
	ns := append(append([]string{}, namespace...), global.NSExport, name)

	new = &Worker{
		Namespace:     ns,
		name:          name,
		publisher:     publisher,
		includeFrames: options.IncludeFrames,
		framePayloads: options.FramePayloads,
		navQueue:      feed.New[navdata.Record](append(append([]string{}, ns...), global.NSNavdata), 1),
		frameQueue:    feed.New[video.Frame](append(append([]string{}, ns...), global.NSVideo), 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	return
}

func (worker *Worker) OfferNavdata(record navdata.Record) {
	worker.navQueue.Push(record)
}

func (worker *Worker) OfferFrame(frame video.Frame) {
	if !worker.includeFrames {
		return
	}
	worker.frameQueue.Push(frame)
}

// Publishes queued records until Shutdown or ctx cancellation.
// A slow publisher only ever sees the newest record of each kind.
func (worker *Worker) Run(ctx context.Context) {
	defer close(worker.done)
	ctx = logctx.OverwriteCtxTag(ctx, worker.Namespace)

	for {
		select {
		case <-ctx.Done():
			return
		case <-worker.stop:
			return
		case first := <-worker.navQueue.Receive():
			record, _ := worker.navQueue.DrainLatest(first)
			worker.publish(ctx, global.NSNavdata, func() error {
				return worker.publisher.PublishNavdata(ctx, NavdataMessage{
					Session:  global.SessionID,
					Hostname: global.Hostname,
					Navdata:  record,
				})
			})
		case first := <-worker.frameQueue.Receive():
			frame, _ := worker.frameQueue.DrainLatest(first)
			message := FrameMessage{
				Session:  global.SessionID,
				Hostname: global.Hostname,
				Frame:    frame,
			}
			if worker.framePayloads {
				message.Payload = frame.Payload
			}
			worker.publish(ctx, global.NSVideo, func() error {
				return worker.publisher.PublishFrame(ctx, message)
			})
		}
	}
}

func (worker *Worker) publish(ctx context.Context, kind string, send func() error) {
	worker.inflight.Add(1)
	defer worker.inflight.Add(-1)

	// Shutdown may already be closing the publisher
	select {
	case <-worker.stop:
		return
	default:
	}

	err := send()
	if err != nil {
		worker.Metrics.Failed.Add(1)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Failed to publish %s: %v\n", kind, err)
		return
	}
	worker.Metrics.Published.Add(1)
}

// Stops the loop, waits for an in-flight publish and closes the publisher
func (worker *Worker) Shutdown(timeout time.Duration) (err error) {
	worker.stopOnce.Do(func() {
		close(worker.stop)
	})

	drained, pending := atomics.WaitUntilZero(&worker.inflight, timeout, 1)
	if !drained {
		err = fmt.Errorf("%s exporter still publishing %d message(s) after %s", worker.name, pending, timeout)
	}

	closeErr := worker.publisher.Close()
	if closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close %s exporter: %w", worker.name, closeErr)
	}
	return
}

// Closed once Run has returned
func (worker *Worker) Done() <-chan struct{} {
	return worker.done
}
