// Feed relay: exposes the newest record of each feed without ever blocking the collector
package relay

import (
	"bytes"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"
)

const frameGapWindow int = 32

func New(namespace []string, config Config, navIn *feed.Channel[navdata.Record], videoIn *feed.Channel[video.Frame], options ...Option) (new *Instance) {
	if config.PollInterval <= 0 {
		config.PollInterval = global.DefaultRelayPollInterval
	}

	new = &Instance{
		Namespace:    append(append([]string{}, namespace...), global.NSRelay),
		pollInterval: config.PollInterval,
		navIn:        navIn,
		videoIn:      videoIn,
		decodeImage:  DecodeImage,
		gaps:         make([]time.Duration, 0, frameGapWindow),
	}
	for _, option := range options {
		option(new)
	}
	return
}

// Decodes payloads in any registered stdlib image format
func DecodeImage(payload []byte) (img image.Image, err error) {
	img, _, err = image.Decode(bytes.NewReader(payload))
	if err != nil {
		err = fmt.Errorf("failed to decode %d byte picture: %w", len(payload), err)
		return
	}
	return
}
