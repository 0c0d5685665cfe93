package main

import (
	"context"
	"dronefeed/internal/cli"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"flag"
	"fmt"
	"os"
	"runtime"
)

func main() {
	global.CmdOpts = cli.DefineOptions()

	args := os.Args
	commandFlags := flag.NewFlagSet(args[0], flag.ExitOnError)
	cli.SetGlobalArguments(commandFlags)

	commandFlags.Usage = func() {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, global.CmdOpts)
	}
	if len(args) < 2 {
		cli.PrintHelpMenu(commandFlags, cli.RootCLICommand, global.CmdOpts)
		os.Exit(1)
	}

	command := args[1]
	args = args[2:]

	// Watchers are started per command once its outputs are known
	ctx, cancel := context.WithCancel(context.Background())
	logger := logctx.NewLogger(global.ProgBaseName, global.Verbosity, ctx.Done())
	ctx = logctx.WithLogger(ctx, logger)

	var exitCode int
	switch command {
	case "run":
		exitCode = cli.RunMode(ctx, command, args)
	case "watch":
		exitCode = cli.WatchMode(ctx, command, args)
	case "simulate":
		exitCode = cli.SimulateMode(ctx, command, args)
	case "version":
		if len(args) > 0 && (args[0] == "--verbosity" || args[0] == "-v") {
			fmt.Printf("dronefeed %s\n", global.ProgVersion)
			fmt.Printf("Built using %s(%s) for %s on %s\n", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH)
		} else {
			fmt.Println(global.ProgVersion)
		}
	case "-h", "--help", "help":
		commandFlags.Usage()
	default:
		commandFlags.Usage()
		exitCode = 1
	}

	// Finish up any queued writes before exit
	cancel()
	logger.Wake()
	logger.Wait()
	os.Exit(exitCode)
}
