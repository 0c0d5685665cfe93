package network

import (
	"fmt"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Multiplexed readiness wait over a fixed set of sockets plus an internal wake pipe.
// The wake pipe is the control channel: a single byte written to it ends any Wait.
type Poller struct {
	mu     sync.Mutex
	fds    []unix.PollFd // sources in registration order, wake pipe last
	wakeR  int
	wakeW  int
	closed bool
}

// Creates poller for the given sources.
// Descriptors are captured once, the sources must stay open for the poller lifetime.
func NewPoller(sources ...syscall.Conn) (poller *Poller, err error) {
	var pipeFDs [2]int
	err = unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC)
	if err != nil {
		err = fmt.Errorf("failed to create wake pipe: %v", err)
		return
	}

	poller = &Poller{
		wakeR: pipeFDs[0],
		wakeW: pipeFDs[1],
	}

	for index, source := range sources {
		var fd int
		fd, err = connFD(source)
		if err != nil {
			poller.Close()
			poller = nil
			err = fmt.Errorf("source %d: %w", index, err)
			return
		}
		poller.fds = append(poller.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	poller.fds = append(poller.fds, unix.PollFd{Fd: int32(poller.wakeR), Events: unix.POLLIN})
	return
}

// Blocks without timeout until at least one source or the wake pipe is readable.
// ready is indexed like the sources given to NewPoller.
// Error and hangup conditions are reported as ready so the following read surfaces them.
func (poller *Poller) Wait() (ready []bool, woken bool, err error) {
	for {
		for i := range poller.fds {
			poller.fds[i].Revents = 0
		}

		_, err = unix.Poll(poller.fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			err = fmt.Errorf("failed poll: %w", err)
			return
		}
		break
	}

	last := len(poller.fds) - 1
	ready = make([]bool, last)
	for i, pfd := range poller.fds {
		if pfd.Revents&unix.POLLNVAL != 0 {
			err = fmt.Errorf("descriptor %d is not open", pfd.Fd)
			return
		}
		hit := pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0
		if i == last {
			woken = hit
		} else {
			ready[i] = hit
		}
	}
	return
}

// Ends the current (or next) Wait. Safe to call from any goroutine, no-op after Close.
func (poller *Poller) Wake() (err error) {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if poller.closed {
		return
	}

	_, err = unix.Write(poller.wakeW, []byte{1})
	if err == unix.EAGAIN {
		// Pipe already full, a wake is pending
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("failed to write wake pipe: %v", err)
	}
	return
}

// Empties the wake pipe
func (poller *Poller) ConsumeWake() {
	buf := make([]byte, 16)
	for {
		n, err := unix.Read(poller.wakeR, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
	}
}

// Closes the wake pipe. Sources are left to their owners.
func (poller *Poller) Close() (err error) {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if poller.closed {
		return
	}
	poller.closed = true

	rErr := unix.Close(poller.wakeR)
	wErr := unix.Close(poller.wakeW)
	if rErr != nil {
		err = fmt.Errorf("failed to close wake pipe: %v", rErr)
	} else if wErr != nil {
		err = fmt.Errorf("failed to close wake pipe: %v", wErr)
	}
	return
}
