package daemon

import (
	"context"
	"dronefeed/internal/collector"
	"dronefeed/internal/export"
	"dronefeed/internal/export/file"
	"dronefeed/internal/feed"
	"dronefeed/internal/logctx"
	"dronefeed/internal/metrics"
	"dronefeed/internal/navdata"
	"dronefeed/internal/relay"
	"dronefeed/internal/video"
	"net/http"
	"sync"
	"time"
)

// On-disk configuration, shared by the json, yaml and toml loaders
type FileConfig struct {
	Vehicle struct {
		Address     string `json:"address" yaml:"address" toml:"address"`
		Generation  int    `json:"generation" yaml:"generation" toml:"generation"`
		NavdataPort int    `json:"navdataPort,omitempty" yaml:"navdataPort,omitempty" toml:"navdataPort,omitempty"`
		VideoPort   int    `json:"videoPort,omitempty" yaml:"videoPort,omitempty" toml:"videoPort,omitempty"`
	} `json:"vehicle" yaml:"vehicle" toml:"vehicle"`
	Network struct {
		BindAddress      string `json:"bindAddress,omitempty" yaml:"bindAddress,omitempty" toml:"bindAddress,omitempty"`
		LocalNavdataPort int    `json:"localNavdataPort,omitempty" yaml:"localNavdataPort,omitempty" toml:"localNavdataPort,omitempty"`
		LocalVideoPort   int    `json:"localVideoPort,omitempty" yaml:"localVideoPort,omitempty" toml:"localVideoPort,omitempty"`
		RecvBufferSize   int    `json:"receiveBufferSize,omitempty" yaml:"receiveBufferSize,omitempty" toml:"receiveBufferSize,omitempty"`
		MaxDrain         int    `json:"maxDrain,omitempty" yaml:"maxDrain,omitempty" toml:"maxDrain,omitempty"`
		DialTimeout      string `json:"dialTimeout,omitempty" yaml:"dialTimeout,omitempty" toml:"dialTimeout,omitempty"`
		SourceFilter     bool   `json:"sourceFilter,omitempty" yaml:"sourceFilter,omitempty" toml:"sourceFilter,omitempty"`
	} `json:"network" yaml:"network" toml:"network"`
	Relay struct {
		PollInterval  string `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty" toml:"pollInterval,omitempty"`
		FeedCapacity  int    `json:"feedCapacity,omitempty" yaml:"feedCapacity,omitempty" toml:"feedCapacity,omitempty"`
		DecodeImages  bool   `json:"decodeImages" yaml:"decodeImages" toml:"decodeImages"`
		ExitOnFailure bool   `json:"exitOnCollectorFailure,omitempty" yaml:"exitOnCollectorFailure,omitempty" toml:"exitOnCollectorFailure,omitempty"`
	} `json:"relay" yaml:"relay" toml:"relay"`
	Server struct {
		Enabled        bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
		Address        string `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
		Port           int    `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`
		AuthSecretFile string `json:"authSecretFile,omitempty" yaml:"authSecretFile,omitempty" toml:"authSecretFile,omitempty"`
	} `json:"server" yaml:"server" toml:"server"`
	Metrics struct {
		Interval string `json:"collectionInterval,omitempty" yaml:"collectionInterval,omitempty" toml:"collectionInterval,omitempty"`
		MaxAge   string `json:"maximumRetention,omitempty" yaml:"maximumRetention,omitempty" toml:"maximumRetention,omitempty"`
	} `json:"metrics" yaml:"metrics" toml:"metrics"`
	Logging struct {
		File       string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty"`
		MaxSizeMB  int    `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty" toml:"maxSizeMB,omitempty"`
		MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty" toml:"maxBackups,omitempty"`
		MaxAgeDays int    `json:"maxAgeDays,omitempty" yaml:"maxAgeDays,omitempty" toml:"maxAgeDays,omitempty"`
		Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty" toml:"compress,omitempty"`
	} `json:"logging" yaml:"logging" toml:"logging"`
	Outputs struct {
		MQTT struct {
			Broker        string `json:"broker,omitempty" yaml:"broker,omitempty" toml:"broker,omitempty"`
			ClientID      string `json:"clientID,omitempty" yaml:"clientID,omitempty" toml:"clientID,omitempty"`
			TopicPrefix   string `json:"topicPrefix,omitempty" yaml:"topicPrefix,omitempty" toml:"topicPrefix,omitempty"`
			QoS           int    `json:"qos,omitempty" yaml:"qos,omitempty" toml:"qos,omitempty"`
			Retain        bool   `json:"retain,omitempty" yaml:"retain,omitempty" toml:"retain,omitempty"`
			Encoding      string `json:"encoding,omitempty" yaml:"encoding,omitempty" toml:"encoding,omitempty"`
			Frames        bool   `json:"frames,omitempty" yaml:"frames,omitempty" toml:"frames,omitempty"`
			FramePayloads bool   `json:"framePayloads,omitempty" yaml:"framePayloads,omitempty" toml:"framePayloads,omitempty"`
		} `json:"mqtt" yaml:"mqtt" toml:"mqtt"`
		Beats struct {
			Address     string `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
			Compression int    `json:"compression,omitempty" yaml:"compression,omitempty" toml:"compression,omitempty"`
			Timeout     string `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
			Frames      bool   `json:"frames,omitempty" yaml:"frames,omitempty" toml:"frames,omitempty"`
		} `json:"beats" yaml:"beats" toml:"beats"`
		Recording struct {
			Path       string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
			MaxSizeMB  int    `json:"maxSizeMB,omitempty" yaml:"maxSizeMB,omitempty" toml:"maxSizeMB,omitempty"`
			MaxBackups int    `json:"maxBackups,omitempty" yaml:"maxBackups,omitempty" toml:"maxBackups,omitempty"`
			Frames     bool   `json:"frames,omitempty" yaml:"frames,omitempty" toml:"frames,omitempty"`
		} `json:"recording" yaml:"recording" toml:"recording"`
	} `json:"outputs" yaml:"outputs" toml:"outputs"`
}

type Config struct {
	Collector collector.Config

	// Relay
	RelayPollInterval      time.Duration
	FeedCapacity           int
	DecodeImages           bool
	ExitOnCollectorFailure bool

	// State server
	ServerEnabled    bool
	ServerListenAddr string
	ServerPort       int
	ServerAuthSecret string

	// Metrics
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration

	// Log file
	LogFile logctx.FileOptions

	// Exporters
	MQTTBroker        string
	MQTTClientID      string
	MQTTTopicPrefix   string
	MQTTQoS           byte
	MQTTRetain        bool
	MQTTEncoding      string
	MQTTFrames        bool
	MQTTFramePayloads bool
	BeatsAddress      string
	BeatsCompression  int
	BeatsTimeout      time.Duration
	BeatsFrames       bool
	Recording         file.Config
	RecordingFrames   bool
}

type Daemon struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	wg           sync.WaitGroup
	shutdownOnce sync.Once
	failure      chan error

	navFeed   *feed.Channel[navdata.Record]
	videoFeed *feed.Channel[video.Frame]

	Collector *collector.Instance
	Relay     *relay.Instance
	Exporters []*export.Worker
	Gatherer  *Gatherer
	Server    *http.Server
	Health    *Health
}

// Collects component metrics into the registry every interval
type Gatherer struct {
	Interval   time.Duration       // Polling interval to gather metrics at
	Retention  time.Duration       // Maximum time to maintain metrics for
	Registry   *metrics.Registry   // Storage for metric data
	Components []metrics.Collector // Everything reporting metrics
}
