package cli

import "dronefeed/internal/global"

func DefineOptions() (cmdOpts *global.CommandSet) {
	root := &global.CommandSet{
		Description:     "Drone Telemetry and Video Relay (dronefeed)",
		FullDescription: "  Collects navdata and video from a quadcopter and serves the newest of each to local consumers",
		CommandName:     RootCLICommand,
		ChildCommands:   make(map[string]*global.CommandSet),
	}

	root.ChildCommands["run"] = &global.CommandSet{
		CommandName:     "run",
		Description:     "Run Relay Daemon",
		FullDescription: "Triggers the vehicle feeds, relays the newest telemetry and frames, and serves them over HTTP and configured outputs",
	}

	root.ChildCommands["watch"] = &global.CommandSet{
		CommandName:     "watch",
		Description:     "Watch Live Telemetry",
		FullDescription: "Polls a running relay's state server and redraws the newest navdata and health",
	}

	root.ChildCommands["simulate"] = &global.CommandSet{
		CommandName:     "simulate",
		Description:     "Simulate a Vehicle",
		FullDescription: "Answers feed triggers with synthetic navdata and video so the relay can run without hardware",
	}

	root.ChildCommands["version"] = &global.CommandSet{
		CommandName:     "version",
		Description:     "Show Version Information",
		FullDescription: "Display meta information about program",
	}

	cmdOpts = root
	return
}
