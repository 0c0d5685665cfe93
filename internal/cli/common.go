package cli

import (
	"dronefeed/internal/global"
	"flag"
	"fmt"
	"os"
)

func SetGlobalArguments(fs *flag.FlagSet) {
	fs.IntVar(&global.Verbosity, "v", 1, "Increase detailed progress messages (Higher is more verbose) <0...5>")
	fs.IntVar(&global.Verbosity, "verbosity", 1, "Increase detailed progress messages (Higher is more verbose) <0...5>")
}

func SetCommon(fs *flag.FlagSet, configPath *string) {
	fs.StringVar(configPath, "c", global.DefaultConfigPath, "Path to the configuration file (json, yaml or toml)")
	fs.StringVar(configPath, "config", global.DefaultConfigPath, "Path to the configuration file (json, yaml or toml)")
}

// Prints a startup error ahead of any log output
func printError(format string, vars ...any) (exitCode int) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", vars...)
	return 1
}
