package cli

import (
	"context"
	"dronefeed/internal/daemon"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"flag"
	"io"
	"os"
)

// Runs the relay daemon until shutdown, returning the process exit code
func RunMode(ctx context.Context, commandname string, args []string) (exitCode int) {
	var configPath string
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args)

	logger := logctx.GetLogger(ctx)
	logctx.SetLogLevel(ctx, global.Verbosity)

	fileCfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return printError("%v", err)
	}

	daemonConfig, err := fileCfg.NewDaemonConf()
	if err != nil {
		return printError("%v", err)
	}

	var output io.Writer = os.Stdout
	if daemonConfig.LogFile.Path != "" {
		file, err := logctx.OpenLogFile(logger, daemonConfig.LogFile)
		if err != nil {
			return printError("%v", err)
		}
		output = io.MultiWriter(os.Stdout, file)
	}
	logctx.StartWatcher(logger, output)

	relayDaemon := daemon.NewDaemon(daemonConfig)
	err = relayDaemon.Start(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "Failed to start relay daemon: %v\n", err)
		exitCode = 1
		return
	}

	err = relayDaemon.Run()
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityNone, global.ErrorLog, "Relay daemon exited: %v\n", err)
		exitCode = 1
		return
	}
	return
}
