package network

import (
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// Reads pending datagrams without blocking until the socket would block or maxReads is reached.
// Only the last datagram received is returned (copied out of buf), all earlier ones are discarded.
// A zero maxReads means no bound.
func DrainLatest(conn syscall.Conn, buf []byte, maxReads int) (latest []byte, reads int, err error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		err = fmt.Errorf("failed to access raw connection: %v", err)
		return
	}

	lastLen := -1
	var recvErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		for maxReads <= 0 || reads < maxReads {
			n, _, rerr := unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
			if rerr != nil {
				if rerr == unix.EINTR {
					continue
				}
				if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
					// Socket empty
					return
				}
				recvErr = rerr
				return
			}
			reads++
			lastLen = n
		}
	})
	if ctrlErr != nil {
		err = fmt.Errorf("failed to access socket descriptor: %w", ctrlErr)
		return
	}
	if recvErr != nil {
		err = fmt.Errorf("failed receive on datagram socket: %w", recvErr)
		return
	}

	if lastLen >= 0 {
		latest = make([]byte, lastLen)
		copy(latest, buf[:lastLen])
	}
	return
}

// Reads pending stream bytes without blocking, handing every chunk to write in order.
// Returns io.EOF once the peer has closed the connection.
func DrainStream(conn syscall.Conn, buf []byte, maxReads int, write func(chunk []byte) error) (reads int, err error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		err = fmt.Errorf("failed to access raw connection: %v", err)
		return
	}

	var loopErr error
	ctrlErr := rawConn.Control(func(fd uintptr) {
		for maxReads <= 0 || reads < maxReads {
			n, rerr := unix.Read(int(fd), buf)
			if rerr != nil {
				if rerr == unix.EINTR {
					continue
				}
				if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
					return
				}
				loopErr = fmt.Errorf("failed receive on stream socket: %w", rerr)
				return
			}
			if n == 0 {
				loopErr = io.EOF
				return
			}
			reads++

			werr := write(buf[:n])
			if werr != nil {
				loopErr = werr
				return
			}
		}
	})
	if ctrlErr != nil {
		err = fmt.Errorf("failed to access socket descriptor: %w", ctrlErr)
		return
	}
	err = loopErr
	return
}
