package simulator

import (
	"dronefeed/internal/video"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	Generation  video.Generation
	BindAddress string
	NavdataPort int           // 0 binds an ephemeral port
	VideoPort   int           // 0 binds an ephemeral port
	Interval    time.Duration // time between emitted samples
}

// Stand-in vehicle emitting synthetic navdata and video once triggered
type Vehicle struct {
	Namespace []string
	config    Config

	navConn       *net.UDPConn
	videoConn     *net.UDPConn     // datagram generation
	videoListener *net.TCPListener // stream generation

	navPeer   atomic.Pointer[net.UDPAddr]
	videoPeer atomic.Pointer[net.UDPAddr]

	streamMu sync.Mutex
	stream   *net.TCPConn

	sequence uint32
	Metrics  MetricStorage
}

type MetricStorage struct {
	Triggers     atomic.Uint64 // trigger datagrams received
	NavdataSent  atomic.Uint64
	FramesSent   atomic.Uint64
	SendFailures atomic.Uint64
}
