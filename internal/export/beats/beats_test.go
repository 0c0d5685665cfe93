package beats

import (
	"context"
	"dronefeed/internal/export"
	"dronefeed/internal/navdata"
	"dronefeed/internal/video"
	"net"
	"testing"
	"time"

	server "github.com/elastic/go-lumber/server/v2"
)

func startServer(t *testing.T) (srv *server.Server, endpoint string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv, err = server.NewWithListener(listener)
	if err != nil {
		t.Fatalf("failed to start beats server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	endpoint = listener.Addr().String()
	return
}

// Acknowledges the next batch and returns its first event
func receiveEvent(t *testing.T, srv *server.Server) (event map[string]interface{}) {
	t.Helper()

	select {
	case batch := <-srv.ReceiveChan():
		batch.ACK()
		if len(batch.Events) != 1 {
			t.Fatalf("expected 1 event in batch, got %d", len(batch.Events))
		}
		var ok bool
		event, ok = batch.Events[0].(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected event type %T", batch.Events[0])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for beats batch")
	}
	return
}

func TestNew_EmptyEndpoint(t *testing.T) {
	publisher, err := New("", 0, 0)
	if err != nil || publisher != nil {
		t.Fatalf("expected nil publisher and nil error, got %v %v", publisher, err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("close on nil publisher: %v", err)
	}
}

func TestNew_Unreachable(t *testing.T) {
	listener, _ := net.Listen("tcp", "127.0.0.1:0")
	endpoint := listener.Addr().String()
	listener.Close()

	_, err := New(endpoint, 0, 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestPublishNavdata(t *testing.T) {
	srv, endpoint := startServer(t)

	publisher, err := New(endpoint, 0, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	defer publisher.Close()

	record := navdata.Record{
		Header:     navdata.HeaderMagic,
		State:      navdata.State(1),
		Sequence:   77,
		ReceivedAt: time.Now(),
		Demo:       &navdata.Demo{Battery: 64, Altitude: 1200},
	}

	errs := make(chan error, 1)
	go func() {
		errs <- publisher.PublishNavdata(context.Background(), export.NavdataMessage{
			Session:  "session-1",
			Hostname: "ground",
			Navdata:  record,
		})
	}()

	event := receiveEvent(t, srv)
	if err := <-errs; err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	nav, ok := event["navdata"].(map[string]interface{})
	if !ok {
		t.Fatalf("event missing navdata fields: %v", event)
	}
	if nav["sequence"].(float64) != 77 {
		t.Fatalf("unexpected sequence %v", nav["sequence"])
	}
	demo, ok := event["demo"].(map[string]interface{})
	if !ok || demo["battery"].(float64) != 64 {
		t.Fatalf("unexpected demo fields %v", event["demo"])
	}
	agent := event["agent"].(map[string]interface{})
	if agent["id"] != "session-1" {
		t.Fatalf("unexpected agent fields %v", agent)
	}
	if _, ok := event["@timestamp"]; !ok {
		t.Fatal("event missing @timestamp")
	}
}

func TestPublishFrame(t *testing.T) {
	srv, endpoint := startServer(t)

	publisher, err := New(endpoint, 3, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	defer publisher.Close()

	frame := video.Frame{
		Generation:  video.GenerationStream,
		Codec:       video.CodecMPEG4AVC,
		Width:       640,
		Height:      360,
		FrameNumber: 9,
		Payload:     make([]byte, 100),
		ReceivedAt:  time.Now(),
	}

	errs := make(chan error, 1)
	go func() {
		errs <- publisher.PublishFrame(context.Background(), export.FrameMessage{Frame: frame, Payload: frame.Payload})
	}()

	event := receiveEvent(t, srv)
	if err := <-errs; err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	fields, ok := event["video"].(map[string]interface{})
	if !ok {
		t.Fatalf("event missing video fields: %v", event)
	}
	if fields["generation"] != "stream" || fields["bytes"].(float64) != 100 || fields["width"].(float64) != 640 {
		t.Fatalf("unexpected video fields %v", fields)
	}
}
