package collector

import (
	"dronefeed/internal/atomics"
	"dronefeed/internal/network"
	"dronefeed/internal/video"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// First generation: bound datagram socket, drain to latest, read picture
type datagramVideo struct {
	instance *Instance
	udp      *net.UDPConn
}

func (source *datagramVideo) conn() syscall.Conn { return source.udp }

func (source *datagramVideo) close() error { return source.udp.Close() }

func (source *datagramVideo) service() (err error) {
	instance := source.instance

	latest, reads, err := network.DrainLatest(source.udp, instance.recvBuf, instance.config.MaxDrain)
	instance.Metrics.VideoDatagrams.Add(uint64(reads))
	atomics.StoreMax(&instance.Metrics.MaxDrainReads, uint64(reads))
	if err != nil || latest == nil {
		return
	}

	start := time.Now()
	err = guard(func() (readErr error) {
		width, height, payload, timestamp, readErr := instance.readPicture(latest)
		if readErr != nil {
			return
		}
		instance.videoOut.Push(video.Frame{
			Generation:  video.GenerationDatagram,
			Codec:       video.CodecUVLC,
			Width:       width,
			Height:      height,
			FrameNumber: timestamp,
			Timestamp:   timestamp,
			Payload:     payload,
			ReceivedAt:  time.Now(),
		})
		return
	})
	atomics.ObserveDuration(&instance.Metrics.LastDecodeNs, &instance.Metrics.MaxDecodeNs, uint64(time.Since(start)))
	if err != nil {
		err = fmt.Errorf("failed to read picture: %w", err)
		return
	}

	instance.Metrics.VideoFrames.Add(1)
	instance.Metrics.LastVideoUnix.Store(time.Now().UnixNano())
	return
}

// Second generation: connected stream, every chunk written in order into the framing sink.
// The sink forwards completed frames itself.
type streamVideo struct {
	instance *Instance
	tcp      *net.TCPConn
	buf      []byte
	sink     *video.StreamSink
}

func (source *streamVideo) conn() syscall.Conn { return source.tcp }

func (source *streamVideo) close() error { return source.tcp.Close() }

func (source *streamVideo) emit(frame video.Frame) {
	source.instance.videoOut.Push(frame)
	source.instance.Metrics.VideoFrames.Add(1)
	source.instance.Metrics.LastVideoUnix.Store(time.Now().UnixNano())
}

func (source *streamVideo) service() (err error) {
	instance := source.instance

	reads, err := network.DrainStream(source.tcp, source.buf, instance.config.MaxDrain, func(chunk []byte) error {
		return guard(func() (writeErr error) {
			_, writeErr = source.sink.Write(chunk)
			return
		})
	})
	instance.Metrics.VideoDatagrams.Add(uint64(reads))
	atomics.StoreMax(&instance.Metrics.MaxDrainReads, uint64(reads))
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("vehicle closed the video stream")
		return
	}
	return
}
