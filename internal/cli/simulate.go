package cli

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/simulator"
	"dronefeed/internal/video"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Serves synthetic feeds until interrupted, returning the process exit code
func SimulateMode(ctx context.Context, commandname string, args []string) (exitCode int) {
	var generation, navdataPort, videoPort int
	var bindAddress string
	var rate float64

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	commandFlags.IntVar(&generation, "g", int(video.GenerationStream), "Vehicle generation to imitate <1|2>")
	commandFlags.IntVar(&generation, "generation", int(video.GenerationStream), "Vehicle generation to imitate <1|2>")
	commandFlags.StringVar(&bindAddress, "b", "127.0.0.1", "Address the simulated vehicle listens on")
	commandFlags.StringVar(&bindAddress, "bind", "127.0.0.1", "Address the simulated vehicle listens on")
	commandFlags.IntVar(&navdataPort, "navdata-port", global.DefaultNavdataPort, "Navdata port")
	commandFlags.IntVar(&videoPort, "video-port", global.DefaultVideoPort, "Video port")
	commandFlags.Float64Var(&rate, "r", 15, "Samples emitted per second")
	commandFlags.Float64Var(&rate, "rate", 15, "Samples emitted per second")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args)

	logctx.SetLogLevel(ctx, global.Verbosity)
	logctx.StartWatcher(logctx.GetLogger(ctx), os.Stdout)

	if rate <= 0 {
		return printError("rate must be positive")
	}

	vehicle := simulator.New([]string{global.NSCLI}, simulator.Config{
		Generation:  video.Generation(generation),
		BindAddress: bindAddress,
		NavdataPort: navdataPort,
		VideoPort:   videoPort,
		Interval:    time.Duration(float64(time.Second) / rate),
	})
	err := vehicle.Open()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "Failed to open simulated vehicle: %v\n", err)
		exitCode = 1
		return
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = vehicle.Run(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "Simulated vehicle failed: %v\n", err)
		exitCode = 1
		return
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Simulated vehicle stopped after %d navdata records and %d frames (%d send failures)\n",
		vehicle.Metrics.NavdataSent.Load(), vehicle.Metrics.FramesSent.Load(), vehicle.Metrics.SendFailures.Load())
	return
}
