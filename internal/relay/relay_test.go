package relay

import (
	"bytes"
	"context"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"
)

func testContext() context.Context {
	return logctx.New(context.Background(), global.NSTest, global.VerbosityNone, nil)
}

func newChannels() (*feed.Channel[navdata.Record], *feed.Channel[video.Frame]) {
	return feed.New[navdata.Record](nil, global.DefaultFeedCapacity), feed.New[video.Frame](nil, global.DefaultFeedCapacity)
}

func pngPayload(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func startRelay(t *testing.T, instance *Instance) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		instance.Run(testContext())
		close(done)
	}()
	return func() {
		instance.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not stop")
		}
	}
}

func eventually(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRelay_AbsentBeforeData(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn)

	if _, ok := instance.Navdata(); ok {
		t.Fatal("navdata present before any data")
	}
	if _, ok := instance.Frame(); ok {
		t.Fatal("frame present before any data")
	}
	if _, ok := instance.Image(); ok {
		t.Fatal("image present before any data")
	}
	if _, ok := instance.ImageFrameNumber(); ok {
		t.Fatal("image frame number present before any data")
	}
	if fps := instance.FrameRate(); fps != 0 {
		t.Fatalf("expected zero frame rate, got %v", fps)
	}
}

func TestRelay_FreshnessAndIndependence(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn)
	stop := startRelay(t, instance)
	defer stop()

	for seq := uint32(1); seq <= 10; seq++ {
		navIn.Push(navdata.Record{Sequence: seq})
	}
	eventually(t, "newest navdata", func() bool {
		record, ok := instance.Navdata()
		return ok && record.Sequence == 10
	})
	if _, ok := instance.Frame(); ok {
		t.Fatal("navdata input changed the video cell")
	}

	videoIn.Push(video.Frame{FrameNumber: 1, Payload: pngPayload(t, 10)})
	videoIn.Push(video.Frame{FrameNumber: 2, Payload: pngPayload(t, 20)})
	eventually(t, "newest frame", func() bool {
		frame, ok := instance.Frame()
		return ok && frame.FrameNumber == 2
	})

	record, _ := instance.Navdata()
	if record.Sequence != 10 {
		t.Fatalf("video input changed the navdata cell: %d", record.Sequence)
	}

	img, ok := instance.Image()
	if !ok {
		t.Fatal("expected decoded image")
	}
	if gray := color.GrayModel.Convert(img.At(0, 0)).(color.Gray); gray.Y != 20 {
		t.Fatalf("image is not from the newest frame, shade %d", gray.Y)
	}
}

func TestRelay_ReadsAreCopies(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn, WithImageDecoder(nil))
	stop := startRelay(t, instance)
	defer stop()

	navIn.Push(navdata.Record{Sequence: 1, Demo: &navdata.Demo{Battery: 80}})
	videoIn.Push(video.Frame{FrameNumber: 1, Payload: []byte{1, 2, 3, 4}})
	eventually(t, "stored frame and navdata", func() bool {
		_, navOK := instance.Navdata()
		_, frameOK := instance.Frame()
		return navOK && frameOK
	})

	frame, _ := instance.Frame()
	frame.Payload[0] = 0xFF
	record, _ := instance.Navdata()
	record.Demo.Battery = 0

	again, _ := instance.Frame()
	if !bytes.Equal(again.Payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("caller modification reached the stored frame: %v", again.Payload)
	}
	recordAgain, _ := instance.Navdata()
	if recordAgain.Demo.Battery != 80 {
		t.Fatalf("caller modification reached the stored navdata: %d", recordAgain.Demo.Battery)
	}
}

func TestRelay_ImageDecodeFailureKeepsPrevious(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn)
	stop := startRelay(t, instance)
	defer stop()

	videoIn.Push(video.Frame{FrameNumber: 1, Payload: pngPayload(t, 99)})
	eventually(t, "first image", func() bool {
		_, ok := instance.Image()
		return ok
	})

	videoIn.Push(video.Frame{FrameNumber: 2, Payload: []byte("not an image")})
	eventually(t, "second frame stored", func() bool {
		frame, ok := instance.Frame()
		return ok && frame.FrameNumber == 2
	})

	number, ok := instance.ImageFrameNumber()
	if !ok || number != 1 {
		t.Fatalf("expected image from frame 1 to be kept, got %d (ok=%v)", number, ok)
	}
	if instance.Metrics.ImageFailures.Load() != 1 {
		t.Fatalf("expected one failure counted, got %d", instance.Metrics.ImageFailures.Load())
	}
}

func TestRelay_DecoderPanicContained(t *testing.T) {
	navIn, videoIn := newChannels()
	panicky := func([]byte) (image.Image, error) { panic("codec bug") }
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn, WithImageDecoder(panicky))
	stop := startRelay(t, instance)
	defer stop()

	videoIn.Push(video.Frame{FrameNumber: 5})
	eventually(t, "failure counted", func() bool {
		return instance.Metrics.ImageFailures.Load() == 1
	})

	navIn.Push(navdata.Record{Sequence: 3})
	eventually(t, "relay still running", func() bool {
		_, ok := instance.Navdata()
		return ok
	})
}

func TestRelay_StopLatency(t *testing.T) {
	navIn, videoIn := newChannels()
	interval := 50 * time.Millisecond
	instance := New(nil, Config{PollInterval: interval}, navIn, videoIn)

	done := make(chan struct{})
	go func() {
		instance.Run(testContext())
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	instance.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not observe stop")
	}
	if elapsed := time.Since(start); elapsed > interval+100*time.Millisecond {
		t.Fatalf("stop took %v with interval %v", elapsed, interval)
	}
}

func TestRelay_ContextCancel(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{PollInterval: time.Hour}, navIn, videoIn)

	ctx, cancel := context.WithCancel(testContext())
	done := make(chan struct{})
	go func() {
		instance.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay ignored cancellation")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	records []uint32
	frames  []uint32
}

func (sink *recordingSink) OfferNavdata(record navdata.Record) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.records = append(sink.records, record.Sequence)
}

func (sink *recordingSink) OfferFrame(frame video.Frame) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.frames = append(sink.frames, frame.FrameNumber)
}

func TestRelay_SinksOffered(t *testing.T) {
	navIn, videoIn := newChannels()
	sink := &recordingSink{}
	failing := func([]byte) (image.Image, error) { return nil, errors.New("no codec") }
	instance := New(nil, Config{PollInterval: 20 * time.Millisecond}, navIn, videoIn, WithSinks(sink), WithImageDecoder(failing))
	stop := startRelay(t, instance)
	defer stop()

	navIn.Push(navdata.Record{Sequence: 8})
	videoIn.Push(video.Frame{FrameNumber: 4})

	eventually(t, "sink offers", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.records) == 1 && len(sink.frames) == 1
	})
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.records[0] != 8 || sink.frames[0] != 4 {
		t.Fatalf("unexpected offers records=%v frames=%v", sink.records, sink.frames)
	}
}

func TestRelay_FrameRate(t *testing.T) {
	navIn, videoIn := newChannels()
	instance := New(nil, Config{}, navIn, videoIn)

	base := time.Now()
	for i := 0; i < 10; i++ {
		instance.recordFrameGap(base.Add(time.Duration(i) * 40 * time.Millisecond))
	}
	if fps := instance.FrameRate(); fps < 24.9 || fps > 25.1 {
		t.Fatalf("expected ~25fps, got %v", fps)
	}

	collected := instance.CollectMetrics(time.Second)
	for _, m := range collected {
		if m.Name == "frame_rate" {
			if raw, ok := m.Value.Raw.(float64); !ok || raw < 24.9 {
				t.Fatalf("unexpected frame_rate metric %v", m.Value.Raw)
			}
			return
		}
	}
	t.Fatal("frame_rate metric missing")
}
