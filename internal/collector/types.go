package collector

import (
	"dronefeed/internal/feed"
	"dronefeed/internal/navdata"
	"dronefeed/internal/network"
	"dronefeed/internal/video"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Telemetry decoder, fails on malformed input
type NavdataDecoder func(raw []byte) (record navdata.Record, err error)

// First generation picture decoder
type PictureReader func(raw []byte) (width, height int, payload []byte, timestamp uint32, err error)

type Config struct {
	VehicleAddress   string
	Generation       video.Generation
	NavdataPort      int // vehicle side
	VideoPort        int // vehicle side
	BindAddress      string
	LocalNavdataPort int
	LocalVideoPort   int // datagram generation only
	MaxDrain         int // datagrams read per wake, 0 for unbounded
	RecvBufferSize   int
	DialTimeout      time.Duration
	SourceFilter     bool // attach kernel filter dropping datagrams not sent by the vehicle
}

// Owns the vehicle sockets for its whole lifetime
type Instance struct {
	Namespace []string
	config    Config

	decodeNavdata NavdataDecoder
	readPicture   PictureReader

	navConn *net.UDPConn
	navPeer *net.UDPAddr
	video   videoSource

	mu            sync.Mutex
	poller        *network.Poller
	stopRequested atomic.Bool
	stopOnce      sync.Once
	opened        bool
	spent         bool // sockets closed after a failed Open or a finished Run

	navOut   *feed.Channel[navdata.Record]
	videoOut *feed.Channel[video.Frame]

	recvBuf []byte
	Metrics MetricStorage
}

// Video transport variant, chosen once at Open
type videoSource interface {
	conn() syscall.Conn
	service() (err error)
	close() (err error)
}

type MetricStorage struct {
	Wakes           atomic.Uint64 // poll returns
	BusyNs          atomic.Uint64 // time spent servicing sources
	NavDatagrams    atomic.Uint64 // navdata datagrams read off the socket
	NavDecoded      atomic.Uint64 // navdata records pushed
	VideoDatagrams  atomic.Uint64 // video datagrams or stream chunks read
	VideoFrames     atomic.Uint64 // frames pushed (datagram generation)
	MaxDrainReads   atomic.Uint64 // most reads in a single drain
	LastDecodeNs    atomic.Uint64
	MaxDecodeNs     atomic.Uint64
	LastNavdataUnix atomic.Int64 // unix nano of the newest navdata push
	LastVideoUnix   atomic.Int64 // unix nano of the newest video push
}

type Option func(instance *Instance)

// Overrides the navdata decoder
func WithNavdataDecoder(decoder NavdataDecoder) Option {
	return func(instance *Instance) {
		instance.decodeNavdata = decoder
	}
}

// Overrides the first generation picture reader
func WithPictureReader(reader PictureReader) Option {
	return func(instance *Instance) {
		instance.readPicture = reader
	}
}
