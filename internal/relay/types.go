package relay

import (
	"dronefeed/internal/feed"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Turns an encoded picture payload into a pixel buffer
type ImageDecoder func(payload []byte) (img image.Image, err error)

// Downstream consumer offered every stored record. Offers must not block.
type Sink interface {
	OfferNavdata(record navdata.Record)
	OfferFrame(frame video.Frame)
}

type Config struct {
	PollInterval time.Duration
}

// Holds the newest record of each feed for concurrent readers
type Instance struct {
	Namespace    []string
	pollInterval time.Duration

	navIn   *feed.Channel[navdata.Record]
	videoIn *feed.Channel[video.Frame]

	decodeImage ImageDecoder
	sinks       []Sink

	navdata  atomic.Pointer[navdata.Record]
	frame    atomic.Pointer[video.Frame]
	image    atomic.Pointer[decodedImage]
	stopping atomic.Bool

	gapMu     sync.Mutex
	gaps      []time.Duration // recent frame arrival gaps, ring
	gapNext   int
	lastFrame time.Time

	Metrics MetricStorage
}

type decodedImage struct {
	img         image.Image
	frameNumber uint32
}

type MetricStorage struct {
	NavdataUpdates atomic.Uint64 // records stored
	FrameUpdates   atomic.Uint64 // frames stored
	Skipped        atomic.Uint64 // items superseded at the relay boundary
	ImageDecodes   atomic.Uint64 // successful pixel decodes
	ImageFailures  atomic.Uint64 // pixel decodes failed, previous image kept
	Wakes          atomic.Uint64 // loop iterations including timeouts
}

type Option func(instance *Instance)

// Overrides the pixel decoder, nil disables image decoding
func WithImageDecoder(decoder ImageDecoder) Option {
	return func(instance *Instance) {
		instance.decodeImage = decoder
	}
}

// Adds downstream consumers
func WithSinks(sinks ...Sink) Option {
	return func(instance *Instance) {
		instance.sinks = append(instance.sinks, sinks...)
	}
}
