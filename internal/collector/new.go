// Feed collector: owns the vehicle sockets, waits on them, drains, decodes and forwards
package collector

import (
	"context"
	"dronefeed/internal/ebpf"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/network"
	"dronefeed/internal/video"
	"fmt"
	"net"
)

func New(namespace []string, config Config, navOut *feed.Channel[navdata.Record], videoOut *feed.Channel[video.Frame], options ...Option) (new *Instance) {
	config.applyDefaults()

	new = &Instance{
		Namespace:     append(append([]string{}, namespace...), global.NSCollector),
		config:        config,
		decodeNavdata: navdata.Decode,
		readPicture:   video.ReadPicture,
		navOut:        navOut,
		videoOut:      videoOut,
		recvBuf:       make([]byte, global.MaxDatagramSize),
	}
	for _, option := range options {
		option(new)
	}
	return
}

// Local ports stay as given, zero binds an ephemeral port
func (config *Config) applyDefaults() {
	if config.NavdataPort == 0 {
		config.NavdataPort = global.DefaultNavdataPort
	}
	if config.VideoPort == 0 {
		config.VideoPort = global.DefaultVideoPort
	}
	if config.MaxDrain < 0 {
		config.MaxDrain = 0
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = global.DefaultVideoDialTimeout
	}
}

// Creates the sockets, sends the trigger datagrams and prepares the wait set.
// On error everything already created is closed again.
func (instance *Instance) Open(ctx context.Context) (err error) {
	ctx = logctx.OverwriteCtxTag(ctx, instance.Namespace)

	instance.mu.Lock()
	defer instance.mu.Unlock()
	if instance.opened {
		err = fmt.Errorf("collector already opened")
		return
	}
	if instance.spent {
		err = fmt.Errorf("collector already ran")
		return
	}

	// mu is still held when this runs
	defer func() {
		if err != nil {
			instance.closeSocketsLocked(ctx)
		}
	}()

	vehicleIP := net.ParseIP(instance.config.VehicleAddress)
	if vehicleIP == nil {
		err = fmt.Errorf("invalid vehicle address %q", instance.config.VehicleAddress)
		return
	}

	ifaceName, localIP, routeErr := network.InterfaceForDestination(instance.config.VehicleAddress, instance.config.NavdataPort)
	if routeErr != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Vehicle route lookup failed: %v\n", routeErr)
	} else {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Vehicle %s reachable via %s (%s)\n", instance.config.VehicleAddress, ifaceName, localIP)
	}

	// Telemetry is always connectionless
	instance.navPeer, err = network.ResolvePeer(instance.config.VehicleAddress, instance.config.NavdataPort)
	if err != nil {
		return
	}
	instance.navConn, err = network.ListenDatagram(instance.config.BindAddress, instance.config.LocalNavdataPort, instance.config.RecvBufferSize)
	if err != nil {
		err = fmt.Errorf("failed to open navdata socket: %w", err)
		return
	}
	instance.attachFilter(ctx, instance.navConn, vehicleIP, global.NSNavdata)

	switch instance.config.Generation {
	case video.GenerationDatagram:
		instance.video, err = instance.openDatagramVideo(ctx, vehicleIP)
	case video.GenerationStream:
		instance.video, err = instance.openStreamVideo(ctx)
	default:
		err = fmt.Errorf("unsupported vehicle generation %d", instance.config.Generation)
	}
	if err != nil {
		return
	}

	err = network.SendTrigger(instance.navConn, instance.navPeer, global.TriggerPayload)
	if err != nil {
		return
	}

	instance.poller, err = network.NewPoller(instance.navConn, instance.video.conn())
	if err != nil {
		return
	}
	instance.opened = true

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Listening for navdata on %s, video over %s transport\n", instance.navConn.LocalAddr(), instance.config.Generation)
	return
}

func (instance *Instance) openDatagramVideo(ctx context.Context, vehicleIP net.IP) (source videoSource, err error) {
	peer, err := network.ResolvePeer(instance.config.VehicleAddress, instance.config.VideoPort)
	if err != nil {
		return
	}

	conn, err := network.ListenDatagram(instance.config.BindAddress, instance.config.LocalVideoPort, instance.config.RecvBufferSize)
	if err != nil {
		err = fmt.Errorf("failed to open video socket: %w", err)
		return
	}
	instance.attachFilter(ctx, conn, vehicleIP, global.NSVideo)

	datagram := &datagramVideo{
		instance: instance,
		udp:      conn,
	}
	source = datagram

	err = network.SendTrigger(conn, peer, global.TriggerPayload)
	if err != nil {
		conn.Close()
		source = nil
		return
	}
	return
}

func (instance *Instance) openStreamVideo(ctx context.Context) (source videoSource, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, instance.config.DialTimeout)
	defer cancel()

	conn, err := network.DialStream(dialCtx, instance.config.VehicleAddress, instance.config.VideoPort,
		instance.config.DialTimeout, instance.config.RecvBufferSize)
	if err != nil {
		err = fmt.Errorf("failed to open video stream: %w", err)
		return
	}

	stream := &streamVideo{
		instance: instance,
		tcp:      conn,
		buf:      make([]byte, global.StreamReadChunkSize),
	}
	stream.sink = video.NewStreamSink(stream.emit)
	source = stream
	return
}

// Kernel source filtering is best effort
func (instance *Instance) attachFilter(ctx context.Context, conn *net.UDPConn, vehicleIP net.IP, feedName string) {
	if !instance.config.SourceFilter {
		return
	}

	err := ebpf.AttachSourceFilter(conn, vehicleIP)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
			"%s socket source filter unavailable, accepting all senders: %v\n", feedName, err)
		return
	}

	cookie, _ := ebpf.SocketCookie(conn)
	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog,
		"%s socket (cookie %d) filtered to datagrams from %s\n", feedName, cookie, vehicleIP)
}
