package cli

import (
	"dronefeed/internal/global"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Configuration formats are chosen by file extension (.json, .yaml/.yml, .toml).
Send SIGHUP to a running relay to reopen its log file.
`
	helpIndent int = 2
)

// Writes the usage line, description, subcommands and options of command to stdout
func PrintHelpMenu(fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	writeHelpMenu(os.Stdout, fs, command, rootCmd)
}

func writeHelpMenu(out io.Writer, fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	cmdSet := rootCmd
	usage := []string{global.ProgBaseName}

	if command != "" && command != RootCLICommand {
		sub, ok := rootCmd.ChildCommands[command]
		if !ok {
			fmt.Fprintf(out, "Unknown command: %s\n", command)
			return
		}
		cmdSet = sub
		usage = append(usage, sub.CommandName)
	}

	if len(cmdSet.ChildCommands) > 0 {
		usage = append(usage, "[command]")
	}
	if cmdSet.UsageOption != "" {
		usage = append(usage, cmdSet.UsageOption)
	}
	usage = append(usage, "[options]")
	fmt.Fprintf(out, "Usage: %s\n\n", strings.Join(usage, " "))

	indent := strings.Repeat(" ", helpIndent)
	if cmdSet == rootCmd {
		fmt.Fprintf(out, "%s\n%s\n\n", cmdSet.Description, cmdSet.FullDescription)
	} else if cmdSet.FullDescription != "" {
		fmt.Fprintf(out, "%sDescription:\n%s%s%s\n\n", indent, indent, indent, cmdSet.FullDescription)
	}

	if len(cmdSet.ChildCommands) > 0 {
		names := make([]string, 0, len(cmdSet.ChildCommands))
		width := 0
		for name := range cmdSet.ChildCommands {
			names = append(names, name)
			width = max(width, len(name))
		}
		sort.Strings(names)

		fmt.Fprintf(out, "%sCommands:\n", indent)
		for _, name := range names {
			fmt.Fprintf(out, "%s%s%-*s  %s\n", indent, indent, width, name, cmdSet.ChildCommands[name].Description)
		}
		fmt.Fprintln(out)
	}

	writeFlagOptions(out, fs)

	if cmdSet == rootCmd {
		fmt.Fprint(out, helpMenuTrailer)
	}
}

type flagLine struct {
	short   string
	long    string
	usage   string
	defVal  string
	sortKey string
}

// Merges short and long flags sharing a usage text into one line
func collectFlagLines(fs *flag.FlagSet) (lines []*flagLine) {
	byUsage := make(map[string]*flagLine)

	fs.VisitAll(func(arg *flag.Flag) {
		line, ok := byUsage[arg.Usage]
		if !ok {
			line = &flagLine{usage: arg.Usage, defVal: arg.DefValue}
			byUsage[arg.Usage] = line
			lines = append(lines, line)
		}
		if len(arg.Name) == 1 {
			line.short = "-" + arg.Name
		} else {
			line.long = "--" + arg.Name
		}
	})

	for _, line := range lines {
		line.sortKey = strings.ToLower(strings.TrimLeft(line.short+line.long, "-"))
	}
	sort.Slice(lines, func(a, b int) bool {
		return lines[a].sortKey < lines[b].sortKey
	})
	return
}

func writeFlagOptions(out io.Writer, fs *flag.FlagSet) {
	lines := collectFlagLines(fs)
	if len(lines) == 0 {
		return
	}

	// "-x, " column is always reserved so long-only flags line up
	const shortColumn int = 4
	longWidth := 0
	for _, line := range lines {
		longWidth = max(longWidth, len(line.long))
	}

	indent := strings.Repeat(" ", helpIndent)
	fmt.Fprintf(out, "%sOptions:\n", indent)
	for _, line := range lines {
		short := ""
		if line.short != "" {
			short = line.short
			if line.long != "" {
				short += ","
			}
		}

		desc := line.usage
		if line.defVal != "" && line.defVal != "false" && line.defVal != "0" {
			desc += fmt.Sprintf(" [default: %s]", line.defVal)
		}

		fmt.Fprintf(out, "%s%s%-*s%-*s  %s\n", indent, indent, shortColumn, short, longWidth, line.long, desc)
	}
}
