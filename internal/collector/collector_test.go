package collector

import (
	"bytes"
	"context"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeVehicle struct {
	nav   *net.UDPConn
	video *net.UDPConn
}

func newFakeVehicle(t *testing.T) (vehicle *fakeVehicle) {
	t.Helper()
	vehicle = &fakeVehicle{}

	var err error
	vehicle.nav, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind fake navdata port: %v", err)
	}
	vehicle.video, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind fake video port: %v", err)
	}
	t.Cleanup(func() {
		vehicle.nav.Close()
		vehicle.video.Close()
	})
	return
}

func (vehicle *fakeVehicle) config() Config {
	return Config{
		VehicleAddress: "127.0.0.1",
		Generation:     video.GenerationDatagram,
		NavdataPort:    vehicle.nav.LocalAddr().(*net.UDPAddr).Port,
		VideoPort:      vehicle.video.LocalAddr().(*net.UDPAddr).Port,
		BindAddress:    "127.0.0.1",
		MaxDrain:       global.DefaultMaxDrain,
		RecvBufferSize: global.MinRecvBufferSize,
	}
}

// Reads the trigger datagram and returns where it came from
func awaitTrigger(t *testing.T, conn *net.UDPConn) *net.UDPAddr {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("no trigger received: %v", err)
	}
	if !bytes.Equal(buf[:n], global.TriggerPayload) {
		t.Fatalf("unexpected trigger %x", buf[:n])
	}
	return from
}

func testContext() context.Context {
	return logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
}

func newChannels() (*feed.Channel[navdata.Record], *feed.Channel[video.Frame]) {
	return feed.New[navdata.Record]([]string{global.NSFeed, global.NSNavdata}, global.DefaultFeedCapacity),
		feed.New[video.Frame]([]string{global.NSFeed, global.NSVideo}, global.DefaultFeedCapacity)
}

func runAsync(ctx context.Context, instance *Instance) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- instance.Run(ctx)
	}()
	return result
}

func awaitRun(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("collector did not exit")
	}
	return nil
}

// Open must return promptly, failed or not
func awaitOpen(t *testing.T, ctx context.Context, instance *Instance) error {
	t.Helper()
	result := make(chan error, 1)
	go func() {
		result <- instance.Open(ctx)
	}()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("open did not return within 2s")
	}
	return nil
}

func assertClosed(t *testing.T, instance *Instance) {
	t.Helper()
	_, err := instance.navConn.Write([]byte{0})
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("navdata socket still open: %v", err)
	}
	_, err = instance.video.conn().(net.Conn).Write([]byte{0})
	if !errors.Is(err, net.ErrClosed) {
		t.Fatalf("video socket still open: %v", err)
	}
}

func TestCollector_DatagramGeneration(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	navAddr := awaitTrigger(t, vehicle.nav)
	videoAddr := awaitTrigger(t, vehicle.video)

	result := runAsync(ctx, instance)

	record := navdata.Record{Header: navdata.HeaderMagic, Sequence: 77, Demo: &navdata.Demo{Battery: 64}}
	vehicle.nav.WriteToUDP(navdata.Encode(record), navAddr)

	picture := append(video.EncodePictureHeader(video.PictureHeader{Format: 2, Resolution: 2, Frame: 900}), 1, 2, 3, 4)
	vehicle.video.WriteToUDP(picture, videoAddr)

	select {
	case first := <-navOut.Receive():
		got, _ := navOut.DrainLatest(first)
		if got.Sequence != 77 || got.Demo == nil || got.Demo.Battery != 64 {
			t.Fatalf("unexpected record %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no navdata forwarded")
	}

	select {
	case first := <-videoOut.Receive():
		got, _ := videoOut.DrainLatest(first)
		if got.Width != 320 || got.Height != 240 || got.Timestamp != 900 || got.Generation != video.GenerationDatagram {
			t.Fatalf("unexpected frame %+v", got)
		}
		if !bytes.Equal(got.Payload, picture) {
			t.Fatal("frame payload differs from datagram")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no video forwarded")
	}

	instance.Stop()
	if err := awaitRun(t, result); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	assertClosed(t, instance)

	navAt, videoAt := instance.LastForwarded()
	if navAt.IsZero() || videoAt.IsZero() {
		t.Fatal("forward times not recorded")
	}
}

func TestCollector_DrainToLatestDecodesOnce(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	var mu sync.Mutex
	var decoded [][]byte
	countingDecoder := func(raw []byte) (navdata.Record, error) {
		mu.Lock()
		decoded = append(decoded, append([]byte(nil), raw...))
		mu.Unlock()
		return navdata.Record{Sequence: uint32(raw[1])}, nil
	}

	instance := New(nil, vehicle.config(), navOut, videoOut, WithNavdataDecoder(countingDecoder))
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer instance.closeSockets(ctx)
	navAddr := awaitTrigger(t, vehicle.nav)

	for _, payload := range [][]byte{{'P', 1}, {'P', 2}, {'P', 3}} {
		vehicle.nav.WriteToUDP(payload, navAddr)
	}
	time.Sleep(50 * time.Millisecond)

	if err := instance.serviceNavdata(ctx); err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(decoded) != 1 {
		t.Fatalf("expected exactly one decode, got %d", len(decoded))
	}
	if !bytes.Equal(decoded[0], []byte{'P', 3}) {
		t.Fatalf("expected decode of P3, got %q", decoded[0])
	}
	if navOut.Len() != 1 {
		t.Fatalf("expected one forwarded record, got %d", navOut.Len())
	}
	got, _ := navOut.TryLatest()
	if got.Sequence != 3 {
		t.Fatalf("forwarded record is not the decode of P3: %+v", got)
	}
	if instance.Metrics.NavDatagrams.Load() != 3 || instance.Metrics.NavDecoded.Load() != 1 {
		t.Fatalf("unexpected counters read=%d decoded=%d", instance.Metrics.NavDatagrams.Load(), instance.Metrics.NavDecoded.Load())
	}
}

func TestCollector_Independence(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	awaitTrigger(t, vehicle.nav)
	videoAddr := awaitTrigger(t, vehicle.video)
	result := runAsync(ctx, instance)

	picture := video.EncodePictureHeader(video.PictureHeader{Format: 1, Resolution: 1, Frame: 1})
	vehicle.video.WriteToUDP(picture, videoAddr)

	select {
	case <-videoOut.Receive():
	case <-time.After(2 * time.Second):
		t.Fatal("no video forwarded")
	}
	if navOut.Len() != 0 {
		t.Fatal("video traffic produced navdata")
	}

	instance.Stop()
	awaitRun(t, result)
}

func TestCollector_StopWhileIdle(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	result := runAsync(ctx, instance)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	instance.Stop()
	instance.Stop() // only the first call signals

	if err := awaitRun(t, result); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stop took %v", elapsed)
	}
	assertClosed(t, instance)
	if navOut.Len() != 0 || videoOut.Len() != 0 {
		t.Fatal("records forwarded without input")
	}
}

func TestCollector_StopBeforeRun(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	instance.Stop()

	if err := awaitRun(t, runAsync(ctx, instance)); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	assertClosed(t, instance)
}

func TestCollector_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	result := runAsync(ctx, instance)
	cancel()

	if err := awaitRun(t, result); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	assertClosed(t, instance)
}

func TestCollector_DecodeFailuresAreFatal(t *testing.T) {
	tests := []struct {
		name    string
		decoder NavdataDecoder
		errText string
	}{
		{
			name:    "decoder error",
			decoder: func([]byte) (navdata.Record, error) { return navdata.Record{}, errors.New("bad magic") },
			errText: "bad magic",
		},
		{
			name: "decoder panic",
			decoder: func(raw []byte) (navdata.Record, error) {
				_ = raw[100]
				return navdata.Record{}, nil
			},
			errText: "decoder panic",
		},
		{
			name:    "real decoder on garbage",
			decoder: navdata.Decode,
			errText: "too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext()
			vehicle := newFakeVehicle(t)
			navOut, videoOut := newChannels()

			instance := New(nil, vehicle.config(), navOut, videoOut, WithNavdataDecoder(tt.decoder))
			if err := instance.Open(ctx); err != nil {
				t.Fatalf("unexpected open error: %v", err)
			}
			navAddr := awaitTrigger(t, vehicle.nav)
			result := runAsync(ctx, instance)

			vehicle.nav.WriteToUDP([]byte{1, 2, 3}, navAddr)

			err := awaitRun(t, result)
			if err == nil {
				t.Fatal("expected fatal decode error")
			}
			if !strings.Contains(err.Error(), "navdata feed") || !strings.Contains(err.Error(), tt.errText) {
				t.Fatalf("unexpected error: %v", err)
			}
			if navOut.Len() != 0 {
				t.Fatal("corrupt record forwarded")
			}
			assertClosed(t, instance)
		})
	}
}

func TestCollector_StreamGeneration(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := listener.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	config := vehicle.config()
	config.Generation = video.GenerationStream
	config.VideoPort = listener.Addr().(*net.TCPAddr).Port

	instance := New(nil, config, navOut, videoOut)
	if err := instance.Open(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	awaitTrigger(t, vehicle.nav)

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("collector never connected")
	}

	result := runAsync(ctx, instance)

	unit := video.EncodePaVE(video.PaVEHeader{Codec: video.CodecMPEG4AVC, DisplayWidth: 640, DisplayHeight: 360, FrameNumber: 12}, []byte("h264-bytes"))
	peer.Write(unit[:20])
	time.Sleep(20 * time.Millisecond)
	peer.Write(unit[20:])

	select {
	case first := <-videoOut.Receive():
		got, _ := videoOut.DrainLatest(first)
		if string(got.Payload) != "h264-bytes" || got.FrameNumber != 12 || got.Generation != video.GenerationStream {
			t.Fatalf("unexpected frame %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame forwarded from stream")
	}

	peer.Close()
	err = awaitRun(t, result)
	if err == nil || !strings.Contains(err.Error(), "closed the video stream") {
		t.Fatalf("expected stream close error, got %v", err)
	}
	assertClosed(t, instance)

	collected := instance.CollectMetrics(time.Second)
	foundSink := false
	for _, m := range collected {
		if m.Name == "resyncs_total" {
			foundSink = true
		}
	}
	if !foundSink {
		t.Fatal("stream sink metrics missing from collection")
	}
}

func TestCollector_OpenErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"invalid vehicle address", func(c *Config) { c.VehicleAddress = "not-an-ip" }},
		{"unknown generation", func(c *Config) { c.Generation = 7 }},
		{"stream refused", func(c *Config) {
			c.Generation = video.GenerationStream
			c.VideoPort = 1
			c.DialTimeout = 500 * time.Millisecond
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vehicle := newFakeVehicle(t)
			navOut, videoOut := newChannels()
			config := vehicle.config()
			tt.mutate(&config)

			instance := New(nil, config, navOut, videoOut)
			if err := awaitOpen(t, testContext(), instance); err == nil {
				t.Fatal("expected open error")
			}
			if instance.navConn != nil {
				if _, err := instance.navConn.Write([]byte{0}); !errors.Is(err, net.ErrClosed) {
					t.Fatalf("navdata socket left open after failed open: %v", err)
				}
			}
			if err := awaitRun(t, runAsync(testContext(), instance)); err == nil || !strings.Contains(err.Error(), "already ran") {
				t.Fatalf("expected run to refuse a failed collector, got %v", err)
			}
			if err := awaitOpen(t, testContext(), instance); err == nil {
				t.Fatal("expected reopen of a failed collector to be refused")
			}
		})
	}
}

func TestCollector_RunOnce(t *testing.T) {
	ctx := testContext()
	vehicle := newFakeVehicle(t)
	navOut, videoOut := newChannels()

	instance := New(nil, vehicle.config(), navOut, videoOut)
	if err := awaitRun(t, runAsync(ctx, instance)); err == nil || !strings.Contains(err.Error(), "not opened") {
		t.Fatalf("expected unopened run to be refused, got %v", err)
	}

	if err := awaitOpen(t, ctx, instance); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := awaitOpen(t, ctx, instance); err == nil || !strings.Contains(err.Error(), "already opened") {
		t.Fatalf("expected second open to be refused, got %v", err)
	}

	instance.Stop()
	if err := awaitRun(t, runAsync(ctx, instance)); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	assertClosed(t, instance)

	if err := awaitRun(t, runAsync(ctx, instance)); err == nil || !strings.Contains(err.Error(), "already ran") {
		t.Fatalf("expected second run to be refused, got %v", err)
	}
	if err := awaitOpen(t, ctx, instance); err == nil {
		t.Fatal("expected open after a finished run to be refused")
	}
}
