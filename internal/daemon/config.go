package daemon

import (
	"bytes"
	"dronefeed/internal/global"
	"dronefeed/internal/video"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"
)

// Overridable for tests
var freeMemory = memory.FreeMemory

// Loads config from file, format chosen by extension (.json, .yaml/.yml, .toml).
// Unknown keys are rejected in every format.
func LoadConfig(path string) (cfg FileConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %v", err)
		return
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decoder := json.NewDecoder(bytes.NewReader(configFile))
		decoder.DisallowUnknownFields()
		err = decoder.Decode(&cfg)
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(configFile))
		decoder.KnownFields(true)
		err = decoder.Decode(&cfg)
	case ".toml":
		var meta toml.MetaData
		meta, err = toml.Decode(string(configFile), &cfg)
		if err == nil {
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown keys %v", undecoded)
			}
		}
	default:
		err = fmt.Errorf("unsupported config file extension %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
		return
	}
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %v", path, err)
		return
	}
	return
}

// Parses file config into daemon config
func (cfg FileConfig) NewDaemonConf() (config Config, err error) {
	// Vehicle settings
	config.Collector.VehicleAddress = cfg.Vehicle.Address
	config.Collector.Generation = video.Generation(cfg.Vehicle.Generation)
	config.Collector.NavdataPort = cfg.Vehicle.NavdataPort
	config.Collector.VideoPort = cfg.Vehicle.VideoPort

	// Network settings
	config.Collector.BindAddress = cfg.Network.BindAddress
	config.Collector.LocalNavdataPort = cfg.Network.LocalNavdataPort
	config.Collector.LocalVideoPort = cfg.Network.LocalVideoPort
	config.Collector.RecvBufferSize = cfg.Network.RecvBufferSize
	config.Collector.MaxDrain = cfg.Network.MaxDrain
	config.Collector.SourceFilter = cfg.Network.SourceFilter
	config.Collector.DialTimeout, err = parseDuration("video dial timeout", cfg.Network.DialTimeout)
	if err != nil {
		return
	}

	// Relay settings
	config.RelayPollInterval, err = parseDuration("relay poll interval", cfg.Relay.PollInterval)
	if err != nil {
		return
	}
	config.FeedCapacity = cfg.Relay.FeedCapacity
	config.DecodeImages = cfg.Relay.DecodeImages
	config.ExitOnCollectorFailure = cfg.Relay.ExitOnFailure

	// Server settings
	config.ServerEnabled = cfg.Server.Enabled
	config.ServerListenAddr = cfg.Server.Address
	config.ServerPort = cfg.Server.Port
	if cfg.Server.AuthSecretFile != "" {
		var secret []byte
		secret, err = os.ReadFile(cfg.Server.AuthSecretFile)
		if err != nil {
			err = fmt.Errorf("failed to read server auth secret: %v", err)
			return
		}
		config.ServerAuthSecret = strings.TrimSpace(string(secret))
		if config.ServerAuthSecret == "" {
			err = fmt.Errorf("server auth secret file '%s' is empty", cfg.Server.AuthSecretFile)
			return
		}
	}

	// Metric settings
	config.MetricMaxAge, err = parseDuration("metric max age", cfg.Metrics.MaxAge)
	if err != nil {
		return
	}
	config.MetricCollectionInterval, err = parseDuration("metric collection interval", cfg.Metrics.Interval)
	if err != nil {
		return
	}

	// Log file settings
	config.LogFile.Path = cfg.Logging.File
	config.LogFile.MaxSizeMB = cfg.Logging.MaxSizeMB
	config.LogFile.MaxBackups = cfg.Logging.MaxBackups
	config.LogFile.MaxAgeDays = cfg.Logging.MaxAgeDays
	config.LogFile.Compress = cfg.Logging.Compress

	// Output settings
	mqttCfg := cfg.Outputs.MQTT
	if mqttCfg.QoS < 0 || mqttCfg.QoS > 2 {
		err = fmt.Errorf("invalid MQTT QoS %d", mqttCfg.QoS)
		return
	}
	config.MQTTBroker = mqttCfg.Broker
	config.MQTTClientID = mqttCfg.ClientID
	config.MQTTTopicPrefix = mqttCfg.TopicPrefix
	config.MQTTQoS = byte(mqttCfg.QoS)
	config.MQTTRetain = mqttCfg.Retain
	config.MQTTEncoding = mqttCfg.Encoding
	config.MQTTFrames = mqttCfg.Frames
	config.MQTTFramePayloads = mqttCfg.FramePayloads

	config.BeatsAddress = cfg.Outputs.Beats.Address
	config.BeatsCompression = cfg.Outputs.Beats.Compression
	config.BeatsFrames = cfg.Outputs.Beats.Frames
	config.BeatsTimeout, err = parseDuration("beats timeout", cfg.Outputs.Beats.Timeout)
	if err != nil {
		return
	}

	config.Recording.Path = cfg.Outputs.Recording.Path
	config.Recording.MaxSizeMB = cfg.Outputs.Recording.MaxSizeMB
	config.Recording.MaxBackups = cfg.Outputs.Recording.MaxBackups
	config.RecordingFrames = cfg.Outputs.Recording.Frames
	return
}

// Empty means unset
func parseDuration(field, raw string) (duration time.Duration, err error) {
	if raw == "" {
		return
	}
	duration, err = time.ParseDuration(raw)
	if err != nil {
		err = fmt.Errorf("failed to parse %s: %v", field, err)
		return
	}
	if duration < 0 {
		err = fmt.Errorf("%s must not be negative", field)
		return
	}
	return
}

// Sets defaults for any missing/invalid values
func (cfg *Config) setDefaults() {
	// Vehicle
	if cfg.Collector.VehicleAddress == "" {
		cfg.Collector.VehicleAddress = global.DefaultVehicleAddress
	}
	if cfg.Collector.Generation == 0 {
		cfg.Collector.Generation = video.GenerationStream
	}
	if cfg.Collector.LocalNavdataPort == 0 {
		cfg.Collector.LocalNavdataPort = global.DefaultNavdataPort
	}
	if cfg.Collector.LocalVideoPort == 0 {
		cfg.Collector.LocalVideoPort = global.DefaultVideoPort
	}
	if cfg.Collector.MaxDrain == 0 {
		cfg.Collector.MaxDrain = global.DefaultMaxDrain
	}

	// Receive buffer, never more than a sixteenth of free memory
	if cfg.Collector.RecvBufferSize == 0 {
		cfg.Collector.RecvBufferSize = global.DefaultRecvBufferSize
	}
	if free := freeMemory(); free > 0 {
		limit := int(free / 16)
		if cfg.Collector.RecvBufferSize > limit {
			cfg.Collector.RecvBufferSize = limit
		}
	}
	if cfg.Collector.RecvBufferSize < global.MinRecvBufferSize {
		cfg.Collector.RecvBufferSize = global.MinRecvBufferSize
	}

	// Relay
	if cfg.RelayPollInterval == 0 {
		cfg.RelayPollInterval = global.DefaultRelayPollInterval
	}
	if cfg.FeedCapacity <= 0 {
		cfg.FeedCapacity = global.DefaultFeedCapacity
	}

	// Server
	if cfg.ServerListenAddr == "" {
		cfg.ServerListenAddr = global.HTTPListenAddr
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = global.HTTPListenPort
	}

	// Metrics
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = 1 * time.Hour
	}
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = 15 * time.Second
	}

	// Exporters
	if cfg.BeatsTimeout == 0 {
		cfg.BeatsTimeout = 3 * time.Second
	}
}
