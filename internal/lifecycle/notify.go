// Process lifecycle: signals and service manager notifications
package lifecycle

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func NotifyReady(ctx context.Context) (err error) {
	err = notify(ctx, "READY=1")
	return
}

// Reload start, stamped with the monotonic clock as the service manager requires
func NotifyReload(ctx context.Context) (err error) {
	var ts unix.Timespec
	err = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	if err != nil {
		err = fmt.Errorf("failed to read monotonic clock: %v", err)
		return
	}
	usec := int64(ts.Sec)*1_000_000 + int64(ts.Nsec)/1_000

	err = notify(ctx, "RELOADING=1", "MONOTONIC_USEC="+strconv.FormatInt(usec, 10))
	return
}

func NotifyStopping(ctx context.Context) (err error) {
	err = notify(ctx, "STOPPING=1")
	return
}

// Free-form status line shown by the service manager
func NotifyStatus(ctx context.Context, msg string) (err error) {
	err = notify(ctx, "STATUS="+strings.ReplaceAll(msg, "\n", " "))
	return
}

// Sends one sd_notify datagram of newline separated assignments.
// No-op without NOTIFY_SOCKET. A leading '@' names an abstract socket.
func notify(ctx context.Context, assignments ...string) (err error) {
	sockPath := os.Getenv("NOTIFY_SOCKET")
	if sockPath == "" {
		return
	}
	if strings.HasPrefix(sockPath, "@") {
		sockPath = "\x00" + sockPath[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	if err != nil {
		err = fmt.Errorf("failed to reach service manager: %v", err)
		return
	}
	defer conn.Close()

	msg := strings.Join(assignments, "\n")
	_, err = conn.Write([]byte(msg))
	if err != nil {
		err = fmt.Errorf("failed to notify service manager: %v", err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Service manager notified: %q\n", msg)
	return
}
