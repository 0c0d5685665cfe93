package server

import (
	"dronefeed/internal/metrics"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"image"
	"time"
)

func mockDiscoverer(results []metrics.Metric) Discoverer {
	return func(filter metrics.DiscoverFilter) []metrics.Metric {
		return results
	}
}

func mockDataSearcher(results []metrics.Metric) DataSearcher {
	return func(name string, ns []string, start, end time.Time) []metrics.Metric {
		return results
	}
}

type mockState struct {
	record   *navdata.Record
	frame    *video.Frame
	img      image.Image
	imgFrame uint32
	fps      float64
}

func (state *mockState) Navdata() (navdata.Record, bool) {
	if state.record == nil {
		return navdata.Record{}, false
	}
	return *state.record, true
}

func (state *mockState) Frame() (video.Frame, bool) {
	if state.frame == nil {
		return video.Frame{}, false
	}
	return *state.frame, true
}

func (state *mockState) Image() (image.Image, bool) {
	return state.img, state.img != nil
}

func (state *mockState) ImageFrameNumber() (uint32, bool) {
	return state.imgFrame, state.img != nil
}

func (state *mockState) FrameRate() float64 {
	return state.fps
}
