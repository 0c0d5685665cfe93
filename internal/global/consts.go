package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgVersion  string = "v0.3.0"
	ProgBaseName string = "dronefeed"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultConfigPath string = "/etc/dronefeed.json"

	// Vehicle network defaults (fixed by the vehicle firmware)
	DefaultVehicleAddress string = "192.168.1.1"
	DefaultNavdataPort    int    = 5554
	DefaultVideoPort      int    = 5555

	// Collector defaults
	DefaultMaxDrain          int           = 64
	DefaultRecvBufferSize    int           = 4 * 1024 * 1024
	MinRecvBufferSize        int           = 256 * 1024
	MaxDatagramSize          int           = 65535
	StreamReadChunkSize      int           = 64 * 1024
	DefaultVideoDialTimeout  time.Duration = 3 * time.Second
	DefaultFeedCapacity      int           = 4
	DefaultRelayPollInterval time.Duration = 1 * time.Second

	// Timeout values
	ShutdownTimeout       time.Duration = 5 * time.Second
	ExportShutdownTimeout time.Duration = 2 * time.Second

	// HTTP state server
	HTTPListenPort   int           = 8554
	HTTPListenAddr   string        = "localhost" // State queries only exposed to local machine by default
	HTTPReadTimeout  time.Duration = 30 * time.Second
	HTTPWriteTimeout time.Duration = 10 * time.Second
	HTTPIdleTimeout  time.Duration = 180 * time.Second

	// HTTP paths
	NavdataPath   string = "/navdata"
	FramePath     string = "/frame"
	ImagePath     string = "/image.png"
	HealthPath    string = "/health"
	DataPath      string = "/metrics/data/"
	DiscoveryPath string = "/metrics/discover/"

	// Namespacing Name Components
	NSMetric    string = "Metrics"
	NSMetricSrv string = "Server"
	NSTest      string = "Test"
	NSCLI       string = "CLI"
	NSDaemon    string = "Daemon"
	NSCollector string = "Collector"
	NSRelay     string = "Relay"
	NSNavdata   string = "Navdata"
	NSVideo     string = "Video"
	NSFeed      string = "Feed"
	NSExport    string = "Export"
	NSMQTT      string = "MQTT"
	NSBeats     string = "Beats"
	NSWatch     string = "Watch"
	NSSimulator string = "Simulator"
	NSRecording string = "Recording"
)

// Trigger datagram sent once to each connectionless vehicle port to start its stream
var TriggerPayload = []byte{0x01, 0x00, 0x00, 0x00}
