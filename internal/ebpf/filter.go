// Kernel side filtering of vehicle sockets
package ebpf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"runtime"
	"syscall"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/rlimit"
	"golang.org/x/sys/unix"
)

const (
	// Negative load offsets address the network header instead of the transport payload
	netHeaderOffset int32 = -0x100000
	ipv4SrcOffset   int32 = 12

	dropLabel string = "drop"
)

// Builds socket filter program accepting only IPv4 datagrams sent from source
func SourceFilterSpec(source net.IP) (spec *ebpf.ProgramSpec, err error) {
	source4 := source.To4()
	if source4 == nil {
		err = fmt.Errorf("source filter requires an IPv4 address, got %v", source)
		return
	}
	// LD_ABS converts to host order, compare as big endian value
	wantSrc := int32(binary.BigEndian.Uint32(source4))

	spec = &ebpf.ProgramSpec{
		Name:    "vehicle_src",
		Type:    ebpf.SocketFilter,
		License: "GPL",
		Instructions: asm.Instructions{
			asm.Mov.Reg(asm.R6, asm.R1), // ctx for packet loads
			asm.LoadAbs(netHeaderOffset+ipv4SrcOffset, asm.Word),
			asm.JNE.Imm32(asm.R0, wantSrc, dropLabel),
			asm.Mov.Imm(asm.R0, 0x7fffffff), // keep whole packet
			asm.Return(),
			asm.Mov.Imm(asm.R0, 0).WithSymbol(dropLabel),
			asm.Return(),
		},
	}
	return
}

// Attaches source filter to a socket so that datagrams from other hosts never reach its buffer.
// Requires BPF privileges. Callers treat failure as non-fatal.
func AttachSourceFilter(conn syscall.Conn, source net.IP) (err error) {
	if runtime.GOOS != "linux" {
		err = errors.ErrUnsupported
		return
	}

	spec, err := SourceFilterSpec(source)
	if err != nil {
		return
	}

	err = rlimit.RemoveMemlock()
	if err != nil {
		err = fmt.Errorf("failed to lift memlock limit: %v", err)
		return
	}

	prog, err := ebpf.NewProgram(spec)
	if err != nil {
		err = fmt.Errorf("failed to load socket filter: %w", err)
		return
	}
	// Socket keeps its own reference once attached
	defer prog.Close()

	rawConn, err := conn.SyscallConn()
	if err != nil {
		err = fmt.Errorf("failed to access raw connection: %v", err)
		return
	}

	var attachErr error
	err = rawConn.Control(func(fd uintptr) {
		attachErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ATTACH_BPF, prog.FD())
	})
	if err != nil {
		err = fmt.Errorf("failed to access socket descriptor: %v", err)
		return
	}
	if attachErr != nil {
		err = fmt.Errorf("failed to attach socket filter: %w", attachErr)
		return
	}
	return
}

// Retrieve unique identifier (cookie) for a given socket
func SocketCookie(conn syscall.Conn) (cookie uint64, err error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		err = fmt.Errorf("failed to access raw connection: %v", err)
		return
	}

	var optErr error
	err = rawConn.Control(func(fd uintptr) {
		cookie, optErr = unix.GetsockoptUint64(int(fd), unix.SOL_SOCKET, unix.SO_COOKIE)
	})
	if err != nil {
		return
	}
	if optErr != nil {
		err = fmt.Errorf("getsockopt failed: %v", optErr)
		return
	}
	return
}
