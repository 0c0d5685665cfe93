// Synthetic vehicle for exercising the collector without hardware
package simulator

import (
	"bytes"
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/network"
	"dronefeed/internal/video"
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

func New(namespace []string, config Config) (new *Vehicle) {
	if config.Interval <= 0 {
		config.Interval = 66 * time.Millisecond
	}
	if config.Generation == 0 {
		config.Generation = video.GenerationStream
	}

	new = &Vehicle{
		Namespace: append(append([]string{}, namespace...), global.NSSimulator),
		config:    config,
	}
	return
}

// Binds the vehicle side ports
func (vehicle *Vehicle) Open() (err error) {
	defer func() {
		if err != nil {
			vehicle.Close()
		}
	}()

	vehicle.navConn, err = network.ListenDatagram(vehicle.config.BindAddress, vehicle.config.NavdataPort, 0)
	if err != nil {
		return
	}

	switch vehicle.config.Generation {
	case video.GenerationDatagram:
		vehicle.videoConn, err = network.ListenDatagram(vehicle.config.BindAddress, vehicle.config.VideoPort, 0)
	case video.GenerationStream:
		address := net.JoinHostPort(vehicle.config.BindAddress, strconv.Itoa(vehicle.config.VideoPort))
		var listener net.Listener
		listener, err = net.Listen("tcp4", address)
		if err != nil {
			err = fmt.Errorf("failed to listen for video stream on %s: %v", address, err)
			return
		}
		vehicle.videoListener = listener.(*net.TCPListener)
	default:
		err = fmt.Errorf("unsupported vehicle generation %d", vehicle.config.Generation)
	}
	return
}

func (vehicle *Vehicle) NavdataAddr() (addr *net.UDPAddr) {
	return vehicle.navConn.LocalAddr().(*net.UDPAddr)
}

func (vehicle *Vehicle) VideoPort() (port int) {
	if vehicle.videoConn != nil {
		return vehicle.videoConn.LocalAddr().(*net.UDPAddr).Port
	}
	return vehicle.videoListener.Addr().(*net.TCPAddr).Port
}

// Emits one navdata record and one video frame per interval until ctx ends.
// Feeds start once the matching trigger or stream connection arrived.
func (vehicle *Vehicle) Run(ctx context.Context) (err error) {
	ctx = logctx.OverwriteCtxTag(ctx, vehicle.Namespace)
	defer vehicle.Close()

	go vehicle.awaitTriggers(ctx, vehicle.navConn, &vehicle.navPeer, global.NSNavdata)
	if vehicle.videoConn != nil {
		go vehicle.awaitTriggers(ctx, vehicle.videoConn, &vehicle.videoPeer, global.NSVideo)
	} else {
		go vehicle.acceptStreams(ctx)
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Simulated vehicle waiting on navdata %s, %s video port %d\n",
		vehicle.navConn.LocalAddr(), vehicle.config.Generation, vehicle.VideoPort())

	ticker := time.NewTicker(vehicle.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vehicle.sequence++
			vehicle.sendNavdata(ctx)
			vehicle.sendFrame(ctx)
		}
	}
}

func (vehicle *Vehicle) Close() {
	if vehicle.navConn != nil {
		vehicle.navConn.Close()
	}
	if vehicle.videoConn != nil {
		vehicle.videoConn.Close()
	}
	if vehicle.videoListener != nil {
		vehicle.videoListener.Close()
	}

	vehicle.streamMu.Lock()
	if vehicle.stream != nil {
		vehicle.stream.Close()
		vehicle.stream = nil
	}
	vehicle.streamMu.Unlock()
}

// Remembers the sender of every trigger datagram as the feed destination
func (vehicle *Vehicle) awaitTriggers(ctx context.Context, conn *net.UDPConn, peer *atomic.Pointer[net.UDPAddr], feedName string) {
	buf := make([]byte, 64)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "%s trigger read failed: %v\n", feedName, err)
			}
			return
		}
		if !bytes.Equal(buf[:n], global.TriggerPayload) {
			continue
		}
		vehicle.Metrics.Triggers.Add(1)
		peer.Store(from)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "%s feed triggered by %s\n", feedName, from)
	}
}

// Newest connection replaces the previous one
func (vehicle *Vehicle) acceptStreams(ctx context.Context) {
	for {
		conn, err := vehicle.videoListener.AcceptTCP()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "video stream accept failed: %v\n", err)
			}
			return
		}

		vehicle.streamMu.Lock()
		if vehicle.stream != nil {
			vehicle.stream.Close()
		}
		vehicle.stream = conn
		vehicle.streamMu.Unlock()
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "video stream opened by %s\n", conn.RemoteAddr())
	}
}

func (vehicle *Vehicle) sendNavdata(ctx context.Context) {
	peer := vehicle.navPeer.Load()
	if peer == nil {
		return
	}

	_, err := vehicle.navConn.WriteToUDP(navdata.Encode(vehicle.telemetry()), peer)
	if err != nil {
		vehicle.Metrics.SendFailures.Add(1)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "navdata send failed: %v\n", err)
		return
	}
	vehicle.Metrics.NavdataSent.Add(1)
}

// Slow climb and yaw with a draining battery
func (vehicle *Vehicle) telemetry() (record navdata.Record) {
	step := float64(vehicle.sequence)
	header := navdata.HeaderMagic
	if vehicle.config.Generation == video.GenerationStream {
		header = navdata.HeaderMagic2
	}
	record = navdata.Record{
		Header:   header,
		State:    navdata.Flying | navdata.VideoEnabled | navdata.NavdataDemo,
		Sequence: vehicle.sequence,
		Demo: &navdata.Demo{
			ControlState: 3,
			Battery:      uint32(100 - (vehicle.sequence/100)%100),
			Theta:        int32(5 * math.Sin(step/20)),
			Phi:          int32(5 * math.Cos(step/20)),
			Psi:          int32(vehicle.sequence % 360),
			Altitude:     uint32(1000 + 500*math.Sin(step/50)),
			VX:           float32(200 * math.Cos(step/30)),
			NumFrames:    vehicle.sequence,
		},
	}
	return
}

func (vehicle *Vehicle) sendFrame(ctx context.Context) {
	var err error
	var sent bool

	switch vehicle.config.Generation {
	case video.GenerationDatagram:
		peer := vehicle.videoPeer.Load()
		if peer == nil {
			return
		}
		raw := video.EncodePictureHeader(video.PictureHeader{
			Format:     2,
			Resolution: 2,
			Quantizer:  12,
			Frame:      vehicle.sequence,
		})
		raw = append(raw, bytes.Repeat([]byte{byte(vehicle.sequence)}, 256)...)
		_, err = vehicle.videoConn.WriteToUDP(raw, peer)
		sent = err == nil
	case video.GenerationStream:
		vehicle.streamMu.Lock()
		defer vehicle.streamMu.Unlock()
		if vehicle.stream == nil {
			return
		}
		raw := video.EncodePaVE(video.PaVEHeader{
			Version:       3,
			Codec:         video.CodecMPEG4AVC,
			EncodedWidth:  640,
			EncodedHeight: 368,
			DisplayWidth:  640,
			DisplayHeight: 360,
			FrameNumber:   vehicle.sequence,
			Timestamp:     uint32(time.Now().UnixMilli()),
			TotalChunks:   1,
			FrameType:     video.FrameTypeP,
		}, bytes.Repeat([]byte{0, 0, 0, 1, byte(vehicle.sequence)}, 64))
		_, err = vehicle.stream.Write(raw)
		if err != nil {
			vehicle.stream.Close()
			vehicle.stream = nil
		}
		sent = err == nil
	}

	if err != nil {
		vehicle.Metrics.SendFailures.Add(1)
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "video send failed: %v\n", err)
		return
	}
	if sent {
		vehicle.Metrics.FramesSent.Add(1)
	}
}
