// Vehicle facing sockets: creation, trigger datagrams, non-blocking drains and readiness polling
package network

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Returns a Control hook applying address reuse and the requested kernel receive buffer size
func socketControl(reuseAddr bool, recvBufferSize int) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var err error
		ctrlErr := c.Control(func(fd uintptr) {
			if reuseAddr {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if err != nil {
					err = fmt.Errorf("SO_REUSEADDR: %v", err)
					return
				}
			}
			if recvBufferSize > 0 {
				// Kernel clamps to net.core.rmem_max
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferSize)
				if err != nil {
					err = fmt.Errorf("SO_RCVBUF: %v", err)
				}
			}
		})
		if ctrlErr != nil {
			return ctrlErr
		}
		return err
	}
}

// Creates connectionless socket bound to the wildcard (or given) address on port
func ListenDatagram(bindAddr string, port int, recvBufferSize int) (conn *net.UDPConn, err error) {
	cfg := net.ListenConfig{
		Control: socketControl(true, recvBufferSize),
	}

	address := net.JoinHostPort(bindAddr, strconv.Itoa(port))
	pc, err := cfg.ListenPacket(context.Background(), "udp4", address)
	if err != nil {
		err = fmt.Errorf("failed to bind datagram socket on %s: %v", address, err)
		return
	}
	conn = pc.(*net.UDPConn)
	return
}

// Creates stream socket connected to the vehicle
func DialStream(ctx context.Context, host string, port int, timeout time.Duration, recvBufferSize int) (conn *net.TCPConn, err error) {
	dialer := net.Dialer{
		Timeout: timeout,
		Control: socketControl(false, recvBufferSize),
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := dialer.DialContext(ctx, "tcp4", address)
	if err != nil {
		err = fmt.Errorf("failed to connect stream socket to %s: %v", address, err)
		return
	}
	conn = c.(*net.TCPConn)
	return
}

// Sends the fixed stream start request to a connectionless vehicle port.
// Best effort, the vehicle never acknowledges it.
func SendTrigger(conn *net.UDPConn, peer *net.UDPAddr, payload []byte) (err error) {
	_, err = conn.WriteToUDP(payload, peer)
	if err != nil {
		err = fmt.Errorf("failed to send trigger to %s: %v", peer.String(), err)
		return
	}
	return
}

// Resolves vehicle host and port into a datagram address
func ResolvePeer(host string, port int) (peer *net.UDPAddr, err error) {
	peer, err = net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		err = fmt.Errorf("invalid vehicle address %s:%d: %v", host, port, err)
		return
	}
	return
}

// Retrieves the OS descriptor behind a connection.
// Only valid while the connection stays open.
func connFD(conn syscall.Conn) (fd int, err error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		err = fmt.Errorf("failed to access raw connection: %v", err)
		return
	}

	err = rawConn.Control(func(f uintptr) {
		fd = int(f)
	})
	if err != nil {
		err = fmt.Errorf("failed to read descriptor: %v", err)
		return
	}
	return
}
