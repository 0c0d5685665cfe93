package network

import (
	"bytes"
	"context"
	"dronefeed/internal/global"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func loopbackPair(t *testing.T) (receiver *net.UDPConn, sender *net.UDPConn) {
	t.Helper()

	receiver, err := ListenDatagram("127.0.0.1", 0, global.MinRecvBufferSize)
	if err != nil {
		t.Fatalf("failed to bind receiver: %v", err)
	}
	t.Cleanup(func() { receiver.Close() })

	sender, err = net.DialUDP("udp4", nil, receiver.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("failed to create sender: %v", err)
	}
	t.Cleanup(func() { sender.Close() })
	return
}

func TestSendTrigger(t *testing.T) {
	vehicle, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind fake vehicle: %v", err)
	}
	defer vehicle.Close()

	local, err := ListenDatagram("127.0.0.1", 0, 0)
	if err != nil {
		t.Fatalf("failed to bind local socket: %v", err)
	}
	defer local.Close()

	err = SendTrigger(local, vehicle.LocalAddr().(*net.UDPAddr), global.TriggerPayload)
	if err != nil {
		t.Fatalf("unexpected trigger error: %v", err)
	}

	vehicle.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, from, err := vehicle.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("fake vehicle did not receive trigger: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte{0x01, 0x00, 0x00, 0x00}) {
		t.Fatalf("unexpected trigger payload %x", buf[:n])
	}
	if from.Port != local.LocalAddr().(*net.UDPAddr).Port {
		t.Fatalf("trigger sent from port %d, expected %d", from.Port, local.LocalAddr().(*net.UDPAddr).Port)
	}
}

func TestDrainLatest(t *testing.T) {
	tests := []struct {
		name       string
		payloads   []string
		maxReads   int
		wantLatest string
		wantReads  int
	}{
		{"empty socket", nil, 0, "", 0},
		{"single datagram", []string{"P1"}, 0, "P1", 1},
		{"keeps only newest", []string{"P1", "P2", "P3"}, 0, "P3", 3},
		{"bounded drain stops early", []string{"P1", "P2", "P3", "P4"}, 2, "P2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiver, sender := loopbackPair(t)

			for _, p := range tt.payloads {
				if _, err := sender.Write([]byte(p)); err != nil {
					t.Fatalf("send failed: %v", err)
				}
			}
			time.Sleep(20 * time.Millisecond)

			buf := make([]byte, global.MaxDatagramSize)
			latest, reads, err := DrainLatest(receiver, buf, tt.maxReads)
			if err != nil {
				t.Fatalf("unexpected drain error: %v", err)
			}
			if reads != tt.wantReads {
				t.Fatalf("expected %d reads, got %d", tt.wantReads, reads)
			}
			if tt.wantReads == 0 {
				if latest != nil {
					t.Fatalf("expected nil latest on empty socket, got %q", latest)
				}
				return
			}
			if string(latest) != tt.wantLatest {
				t.Fatalf("expected latest %q, got %q", tt.wantLatest, latest)
			}
		})
	}
}

func TestDrainLatest_CopiesOutOfBuffer(t *testing.T) {
	receiver, sender := loopbackPair(t)
	sender.Write([]byte("abc"))
	time.Sleep(20 * time.Millisecond)

	buf := make([]byte, 64)
	latest, _, err := DrainLatest(receiver, buf, 0)
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	buf[0] = 'z'
	if string(latest) != "abc" {
		t.Fatalf("latest aliases the receive buffer: %q", latest)
	}
}

func TestDrainLatest_ClosedSocket(t *testing.T) {
	receiver, _ := loopbackPair(t)
	receiver.Close()

	_, _, err := DrainLatest(receiver, make([]byte, 64), 0)
	if err == nil {
		t.Fatal("expected error draining closed socket")
	}
}

func TestDrainStream(t *testing.T) {
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

	port := listener.Addr().(*net.TCPAddr).Port
	conn, err := DialStream(context.Background(), "127.0.0.1", port, time.Second, global.MinRecvBufferSize)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	peer := <-accepted
	peer.Write([]byte("chunk-one|"))
	peer.Write([]byte("chunk-two"))
	time.Sleep(20 * time.Millisecond)

	var got bytes.Buffer
	write := func(chunk []byte) error {
		got.Write(chunk)
		return nil
	}

	_, err = DrainStream(conn, make([]byte, 4), 0, write)
	if err != nil {
		t.Fatalf("unexpected drain error: %v", err)
	}
	if got.String() != "chunk-one|chunk-two" {
		t.Fatalf("stream bytes out of order or missing: %q", got.String())
	}

	peer.Close()
	time.Sleep(20 * time.Millisecond)
	_, err = DrainStream(conn, make([]byte, 4), 0, write)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestDrainStream_WriterError(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		c, err := listener.Accept()
		if err == nil {
			c.Write([]byte("data"))
			time.Sleep(200 * time.Millisecond)
			c.Close()
		}
	}()

	conn, err := DialStream(context.Background(), "127.0.0.1", listener.Addr().(*net.TCPAddr).Port, time.Second, 0)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	sinkErr := errors.New("sink rejected chunk")
	_, err = DrainStream(conn, make([]byte, 64), 0, func([]byte) error { return sinkErr })
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestDialStream_Refused(t *testing.T) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	_, err = DialStream(context.Background(), "127.0.0.1", port, time.Second, 0)
	if err == nil {
		t.Fatal("expected connection error")
	}
}
