package relay

import (
	"dronefeed/internal/calc"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"image"
	"slices"
)

// Newest telemetry record, ok is false until one has arrived.
// The record is a copy, callers may modify it freely.
func (instance *Instance) Navdata() (record navdata.Record, ok bool) {
	stored := instance.navdata.Load()
	if stored == nil {
		return
	}
	record, ok = stored.Clone(), true
	return
}

// Newest encoded video frame, ok is false until one has arrived.
// The payload is a copy, callers may modify it freely.
func (instance *Instance) Frame() (frame video.Frame, ok bool) {
	stored := instance.frame.Load()
	if stored == nil {
		return
	}
	frame, ok = *stored, true
	frame.Payload = slices.Clone(stored.Payload)
	return
}

// Newest successfully decoded pixel buffer, ok is false until one has decoded
func (instance *Instance) Image() (img image.Image, ok bool) {
	stored := instance.image.Load()
	if stored == nil {
		return
	}
	img, ok = stored.img, true
	return
}

// Frame number the current pixel buffer was decoded from
func (instance *Instance) ImageFrameNumber() (frameNumber uint32, ok bool) {
	stored := instance.image.Load()
	if stored == nil {
		return
	}
	frameNumber, ok = stored.frameNumber, true
	return
}

// Estimated video frame rate from recent arrival gaps
func (instance *Instance) FrameRate() (fps float64) {
	instance.gapMu.Lock()
	gaps := slices.Clone(instance.gaps)
	instance.gapMu.Unlock()

	fps = calc.RateFromGaps(gaps, 0.1)
	return
}
