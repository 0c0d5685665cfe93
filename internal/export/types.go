package export

import (
	"context"
	"dronefeed/internal/feed"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"sync"
	"sync/atomic"
)

// Destination for relayed records
type Publisher interface {
	PublishNavdata(ctx context.Context, message NavdataMessage) (err error)
	PublishFrame(ctx context.Context, message FrameMessage) (err error)
	Close() (err error)
}

// Telemetry record as published
type NavdataMessage struct {
	Session  string         `json:"session"`
	Hostname string         `json:"hostname"`
	Navdata  navdata.Record `json:"navdata"`
}

// Video frame metadata, plus the encoded payload when enabled
type FrameMessage struct {
	Session  string      `json:"session"`
	Hostname string      `json:"hostname"`
	Frame    video.Frame `json:"frame"`
	Payload  []byte      `json:"payload,omitempty"`
}

// Latest-wins queueing in front of one publisher
type Worker struct {
	Namespace     []string
	name          string
	publisher     Publisher
	includeFrames bool
	framePayloads bool

	navQueue   *feed.Channel[navdata.Record]
	frameQueue *feed.Channel[video.Frame]

	inflight atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	Metrics MetricStorage
}

type MetricStorage struct {
	Published atomic.Uint64 // messages accepted by the publisher
	Failed    atomic.Uint64 // publish errors
}

type Options struct {
	IncludeFrames bool // publish frame messages at all
	FramePayloads bool // include encoded picture bytes in frame messages
}
