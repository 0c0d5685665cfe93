// Daemon wiring the vehicle collector, relay, exporters and state server together
package daemon

import (
	"context"
	"dronefeed/internal/collector"
	"dronefeed/internal/export"
	"dronefeed/internal/export/beats"
	"dronefeed/internal/export/file"
	"dronefeed/internal/export/mqtt"
	"dronefeed/internal/feed"
	"dronefeed/internal/global"
	"dronefeed/internal/lifecycle"
	"dronefeed/internal/logctx"
	"dronefeed/internal/metrics"
	"dronefeed/internal/navdata"
	"dronefeed/internal/relay"
	"dronefeed/internal/server"
	"dronefeed/internal/video"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// Create new daemon instance
func NewDaemon(cfg Config) (new *Daemon) {
	ctx, cancel := context.WithCancel(context.Background())
	new = &Daemon{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		failure: make(chan error, 1),
	}
	return
}

// Opens the vehicle sockets and starts every worker in background.
// Gracefully shuts down if a startup error is encountered.
func (daemon *Daemon) Start(globalCtx context.Context) (err error) {
	// New context for the daemon
	daemon.ctx, daemon.cancel = context.WithCancel(context.Background())
	daemon.ctx = logctx.WithLogger(daemon.ctx, logctx.GetLogger(globalCtx))
	daemon.ctx = logctx.OverwriteCtxTag(daemon.ctx, []string{global.NSDaemon})

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog, "Starting...\n")

	// Pre-startup
	daemon.cfg.setDefaults()

	global.Hostname, err = os.Hostname()
	if err != nil {
		err = fmt.Errorf("failed to determine local hostname: %v", err)
		return
	}
	global.PID = os.Getpid()
	global.SessionID = uuid.NewString()

	defer func() {
		if err != nil {
			daemon.Shutdown()
		}
	}()

	// Feeds between collector and relay
	namespace := []string{global.NSFeed}
	daemon.navFeed = feed.New[navdata.Record](append(append([]string{}, namespace...), global.NSNavdata), daemon.cfg.FeedCapacity)
	daemon.videoFeed = feed.New[video.Frame](append(append([]string{}, namespace...), global.NSVideo), daemon.cfg.FeedCapacity)

	// Exporters
	err = daemon.startExporters()
	if err != nil {
		return
	}

	// Relay
	relayOptions := []relay.Option{}
	if !daemon.cfg.DecodeImages {
		relayOptions = append(relayOptions, relay.WithImageDecoder(nil))
	}
	sinks := make([]relay.Sink, 0, len(daemon.Exporters))
	for _, worker := range daemon.Exporters {
		sinks = append(sinks, worker)
	}
	relayOptions = append(relayOptions, relay.WithSinks(sinks...))

	daemon.Relay = relay.New(nil, relay.Config{PollInterval: daemon.cfg.RelayPollInterval}, daemon.navFeed, daemon.videoFeed, relayOptions...)
	relayCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		daemon.Relay.Run(relayCtx)
	}()

	// Collector
	daemon.Collector = collector.New(nil, daemon.cfg.Collector, daemon.navFeed, daemon.videoFeed)
	daemon.Health = newHealth(global.SessionID, daemon.cfg.Collector.VehicleAddress, daemon.Collector.LastForwarded)

	err = daemon.Collector.Open(daemon.ctx)
	if err != nil {
		daemon.Health.set(HealthFailed, err)
		err = fmt.Errorf("failed to open vehicle feeds: %w", err)
		return
	}

	collectorCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		daemon.runCollector(collectorCtx)
	}()

	// Metrics
	components := []metrics.Collector{daemon.Collector, daemon.navFeed, daemon.videoFeed, daemon.Relay}
	for _, worker := range daemon.Exporters {
		components = append(components, worker)
	}
	daemon.Gatherer = NewGatherer(components, daemon.cfg.MetricCollectionInterval, daemon.cfg.MetricMaxAge)
	gathererCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		daemon.Gatherer.Run(gathererCtx)
	}()

	// State server
	if daemon.cfg.ServerEnabled {
		serverCtx := logctx.AppendCtxTag(daemon.ctx, global.NSMetricSrv)

		daemon.Server, err = server.SetupListener(serverCtx,
			server.Config{
				ListenAddr: daemon.cfg.ServerListenAddr,
				Port:       daemon.cfg.ServerPort,
				AuthSecret: daemon.cfg.ServerAuthSecret,
			},
			daemon.Relay,
			daemon.Health.Healthy,
			daemon.Gatherer.Registry.Search,
			daemon.Gatherer.Registry.Discover)
		if err != nil {
			err = fmt.Errorf("failed to set up state server: %v", err)
			return
		}
		daemon.wg.Add(1)
		go func() {
			defer daemon.wg.Done()
			server.Start(serverCtx, daemon.Server)
		}()
	}

	// Start handling exit signals once everything is running
	go lifecycle.SignalHandler(daemon.ctx, daemon)

	err = lifecycle.NotifyReady(daemon.ctx)
	if err != nil {
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
		err = nil
	}
	statusErr := lifecycle.NotifyStatus(daemon.ctx, fmt.Sprintf("Relaying %s vehicle at %s",
		daemon.cfg.Collector.Generation, daemon.cfg.Collector.VehicleAddress))
	if statusErr != nil {
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify status failed: %v\n", statusErr)
	}

	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Startup complete (session %s).\n", global.SessionID)
	return
}

func (daemon *Daemon) startExporters() (err error) {
	exportCtx := logctx.AppendCtxTag(daemon.ctx, global.NSExport)

	if daemon.cfg.MQTTBroker != "" {
		var publisher *mqtt.Publisher
		publisher, err = mqtt.New(logctx.AppendCtxTag(exportCtx, global.NSMQTT), mqtt.Config{
			Broker:      daemon.cfg.MQTTBroker,
			ClientID:    daemon.cfg.MQTTClientID,
			TopicPrefix: daemon.cfg.MQTTTopicPrefix,
			QoS:         daemon.cfg.MQTTQoS,
			Retain:      daemon.cfg.MQTTRetain,
			Encoding:    daemon.cfg.MQTTEncoding,
		})
		if err != nil {
			err = fmt.Errorf("failed starting MQTT output: %v", err)
			return
		}
		daemon.addExporter(global.NSMQTT, publisher, export.Options{
			IncludeFrames: daemon.cfg.MQTTFrames,
			FramePayloads: daemon.cfg.MQTTFramePayloads,
		})
	}

	if daemon.cfg.BeatsAddress != "" {
		var publisher *beats.Publisher
		publisher, err = beats.New(daemon.cfg.BeatsAddress, daemon.cfg.BeatsCompression, daemon.cfg.BeatsTimeout)
		if err != nil {
			err = fmt.Errorf("failed starting beats output: %v", err)
			return
		}
		daemon.addExporter(global.NSBeats, publisher, export.Options{IncludeFrames: daemon.cfg.BeatsFrames})
	}

	if daemon.cfg.Recording.Path != "" {
		var publisher *file.Publisher
		publisher, err = file.New(daemon.cfg.Recording)
		if err != nil {
			err = fmt.Errorf("failed starting recording output: %v", err)
			return
		}
		daemon.addExporter(global.NSRecording, publisher, export.Options{IncludeFrames: daemon.cfg.RecordingFrames})
	}
	return
}

func (daemon *Daemon) addExporter(name string, publisher export.Publisher, options export.Options) {
	worker := export.NewWorker(nil, name, publisher, options)
	daemon.Exporters = append(daemon.Exporters, worker)

	workerCtx := daemon.ctx
	daemon.wg.Add(1)
	go func() {
		defer daemon.wg.Done()
		worker.Run(workerCtx)
	}()
}

// Records the collector outcome. The daemon keeps serving the last values
// unless configured to exit on collector failure.
func (daemon *Daemon) runCollector(ctx context.Context) {
	daemon.Health.set(HealthRunning, nil)

	err := daemon.Collector.Run(ctx)
	if err == nil {
		daemon.Health.set(HealthStopped, nil)
		return
	}

	daemon.Health.set(HealthFailed, err)
	logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Collector failed: %v\n", err)

	statusErr := lifecycle.NotifyStatus(ctx, "Collector failed: "+err.Error())
	if statusErr != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify status failed: %v\n", statusErr)
	}

	if daemon.cfg.ExitOnCollectorFailure {
		daemon.failure <- err
		go daemon.Shutdown()
	}
}

// Blocking daemon waiter. Returns the collector error when it ended the daemon.
func (daemon *Daemon) Run() (err error) {
	<-daemon.ctx.Done()
	select {
	case err = <-daemon.failure:
	default:
	}
	return
}

// Gracefully shutdown worker threads (errors are printed to program log buffer)
func (daemon *Daemon) Shutdown() {
	daemon.shutdownOnce.Do(daemon.shutdown)
}

func (daemon *Daemon) shutdown() {
	logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
		"Daemon shutdown started...\n")

	// Stop state server
	if daemon.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(daemon.ctx, global.HTTPWriteTimeout)
		err := daemon.Server.Shutdown(shutdownCtx)
		cancel()
		if err != nil && err != http.ErrServerClosed {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"state HTTP server did not shutdown gracefully: %v\n", err)
		}
	}

	// Producer first, then consumer
	if daemon.Collector != nil {
		daemon.Collector.Stop()
	}
	if daemon.Relay != nil {
		daemon.Relay.Stop()
	}

	for _, worker := range daemon.Exporters {
		err := worker.Shutdown(global.ExportShutdownTimeout)
		if err != nil {
			logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
				"exporter did not shutdown gracefully: %v\n", err)
		}
	}

	// Stop the run loop after workers were told to stop
	daemon.cancel()

	// Wait for all workers to finish (with timeout)
	done := make(chan struct{})
	go func() {
		daemon.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.InfoLog,
			"Daemon shutdown completed successfully\n")
	case <-time.After(global.ShutdownTimeout):
		logctx.LogEvent(daemon.ctx, global.VerbosityStandard, global.WarnLog,
			"Timeout: daemon did not shutdown within %v seconds\n",
			global.ShutdownTimeout.Seconds())
	}
}
