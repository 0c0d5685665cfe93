package relay

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"fmt"
	"image"
	"runtime/debug"
	"time"
)

// Moves the newest pending record of each feed into the exposed cells.
// Waits at most one poll interval per iteration so Stop is observed promptly.
func (instance *Instance) Run(ctx context.Context) {
	ctx = logctx.OverwriteCtxTag(ctx, instance.Namespace)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Relay loop started (poll interval %s)\n", instance.pollInterval)

	timer := time.NewTimer(instance.pollInterval)
	defer timer.Stop()

	for {
		if instance.stopping.Load() {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Relay stopping\n")
			return
		}
		timer.Reset(instance.pollInterval)

		select {
		case <-ctx.Done():
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Relay stopping\n")
			return
		case first := <-instance.videoIn.Receive():
			frame, dropped := instance.videoIn.DrainLatest(first)
			instance.Metrics.Skipped.Add(uint64(dropped))
			instance.storeFrame(ctx, frame)

			record, ok := instance.navIn.TryLatest()
			if ok {
				instance.storeNavdata(record)
			}
		case first := <-instance.navIn.Receive():
			record, dropped := instance.navIn.DrainLatest(first)
			instance.Metrics.Skipped.Add(uint64(dropped))
			instance.storeNavdata(record)

			frame, ok := instance.videoIn.TryLatest()
			if ok {
				instance.storeFrame(ctx, frame)
			}
		case <-timer.C:
		}
		instance.Metrics.Wakes.Add(1)
	}
}

// Requests loop exit, observed within one poll interval
func (instance *Instance) Stop() {
	instance.stopping.Store(true)
}

// Replaces the exposed record outright
func (instance *Instance) storeNavdata(record navdata.Record) {
	instance.navdata.Store(&record)
	instance.Metrics.NavdataUpdates.Add(1)

	for _, sink := range instance.sinks {
		sink.OfferNavdata(record)
	}
}

// Stores the encoded frame and refreshes the pixel buffer.
// A payload that fails to decode leaves the previous image in place.
func (instance *Instance) storeFrame(ctx context.Context, frame video.Frame) {
	instance.frame.Store(&frame)
	instance.Metrics.FrameUpdates.Add(1)
	instance.recordFrameGap(frame.ReceivedAt)

	if instance.decodeImage != nil {
		img, err := instance.safeDecode(frame.Payload)
		if err != nil {
			instance.Metrics.ImageFailures.Add(1)
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
				"Keeping previous image, frame %d did not decode: %v\n", frame.FrameNumber, err)
		} else {
			instance.image.Store(&decodedImage{img: img, frameNumber: frame.FrameNumber})
			instance.Metrics.ImageDecodes.Add(1)
		}
	}

	for _, sink := range instance.sinks {
		sink.OfferFrame(frame)
	}
}

func (instance *Instance) safeDecode(payload []byte) (img image.Image, err error) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			err = fmt.Errorf("image decoder panic: %v\n%s", fatalError, debug.Stack())
		}
	}()
	img, err = instance.decodeImage(payload)
	if err == nil && img == nil {
		err = fmt.Errorf("image decoder returned no image")
	}
	return
}

func (instance *Instance) recordFrameGap(receivedAt time.Time) {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	instance.gapMu.Lock()
	defer instance.gapMu.Unlock()

	if !instance.lastFrame.IsZero() {
		gap := receivedAt.Sub(instance.lastFrame)
		if gap > 0 {
			if len(instance.gaps) < frameGapWindow {
				instance.gaps = append(instance.gaps, gap)
			} else {
				instance.gaps[instance.gapNext] = gap
				instance.gapNext = (instance.gapNext + 1) % frameGapWindow
			}
		}
	}
	instance.lastFrame = receivedAt
}
