package server

import (
	"context"
	"dronefeed/internal/metrics"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"image"
	"time"
)

type httpLogWriter struct {
	ctx context.Context
}

type Jerror struct {
	Msg string `json:"error"`
}

type Config struct {
	ListenAddr string
	Port       int
	AuthSecret string // HS256 secret, empty disables bearer auth
}

// Newest-value reader, satisfied by the relay
type StateSource interface {
	Navdata() (record navdata.Record, ok bool)
	Frame() (frame video.Frame, ok bool)
	Image() (img image.Image, ok bool)
	ImageFrameNumber() (frameNumber uint32, ok bool)
	FrameRate() (fps float64)
}

// Reports daemon health. Unhealthy answers are served as 503.
type HealthFunc func() (report any, healthy bool)

type DataSearcher func(name string, namespacePrefix []string, start, end time.Time) []metrics.Metric
type Discoverer func(filter metrics.DiscoverFilter) []metrics.Metric

// Body of the navdata endpoint
type NavdataResponse struct {
	Navdata   navdata.Record `json:"navdata"`
	FrameRate float64        `json:"frame_rate"`
}
