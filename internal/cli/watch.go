package cli

import (
	"context"
	"dronefeed/internal/daemon"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/server"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
)

const (
	clearScreen  string = "\033[H\033[2J"
	defaultWidth int    = 80
)

// One poll of the state server
type snapshot struct {
	At        time.Time
	Navdata   *server.NavdataResponse
	NavErr    error
	Health    *daemon.HealthReport
	HealthErr error
}

// Polls a running relay and redraws its newest state, returning the process exit code
func WatchMode(ctx context.Context, commandname string, args []string) (exitCode int) {
	var baseURL, tokenFile string
	var interval time.Duration
	var once bool

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	defaultURL := fmt.Sprintf("http://%s:%d", global.HTTPListenAddr, global.HTTPListenPort)
	commandFlags.StringVar(&baseURL, "a", defaultURL, "Base URL of the relay state server")
	commandFlags.StringVar(&baseURL, "address", defaultURL, "Base URL of the relay state server")
	commandFlags.StringVar(&tokenFile, "t", "", "File holding a bearer token for an authenticated server")
	commandFlags.StringVar(&tokenFile, "token-file", "", "File holding a bearer token for an authenticated server")
	commandFlags.DurationVar(&interval, "i", 500*time.Millisecond, "Time between polls")
	commandFlags.DurationVar(&interval, "interval", 500*time.Millisecond, "Time between polls")
	commandFlags.BoolVar(&once, "once", false, "Print a single snapshot and exit")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, global.CmdOpts)
	}
	commandFlags.Parse(args)

	logctx.SetLogLevel(ctx, global.Verbosity)
	logctx.StartWatcher(logctx.GetLogger(ctx), os.Stderr)
	ctx = logctx.AppendCtxTag(ctx, global.NSWatch)

	var token string
	if tokenFile != "" {
		raw, err := os.ReadFile(tokenFile)
		if err != nil {
			return printError("failed to read token file: %v", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if interval <= 0 {
		return printError("poll interval must be positive")
	}

	poller := &statePoller{
		client:  &http.Client{Timeout: 2 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}

	if once {
		state := poller.poll(ctx)
		fmt.Fprint(os.Stdout, renderSnapshot(state, terminalWidth()))
		if state.NavErr != nil && state.HealthErr != nil {
			exitCode = 1
		}
		return
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state := poller.poll(ctx)
		view := renderSnapshot(state, terminalWidth())
		if interactive {
			view = clearScreen + view
		}
		fmt.Fprint(os.Stdout, view)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func terminalWidth() (width int) {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = defaultWidth
	}
	return
}

type statePoller struct {
	client  *http.Client
	baseURL string
	token   string
}

func (poller *statePoller) poll(ctx context.Context) (state snapshot) {
	state.At = time.Now()

	var nav server.NavdataResponse
	_, state.NavErr = poller.getJSON(ctx, global.NavdataPath, &nav, http.StatusOK)
	if state.NavErr == nil {
		state.Navdata = &nav
	}

	var health daemon.HealthReport
	_, state.HealthErr = poller.getJSON(ctx, global.HealthPath, &health, http.StatusOK, http.StatusServiceUnavailable)
	if state.HealthErr == nil {
		state.Health = &health
	}

	if state.NavErr != nil {
		logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "navdata poll failed: %v\n", state.NavErr)
	}
	return
}

// Decodes the response body into dest when the status is one of accepted
func (poller *statePoller) getJSON(ctx context.Context, path string, dest any, accepted ...int) (status int, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, poller.baseURL+path, nil)
	if err != nil {
		err = fmt.Errorf("failed to build request: %v", err)
		return
	}
	if poller.token != "" {
		request.Header.Set("Authorization", "Bearer "+poller.token)
	}

	response, err := poller.client.Do(request)
	if err != nil {
		err = fmt.Errorf("request to %s failed: %v", path, err)
		return
	}
	defer response.Body.Close()
	status = response.StatusCode

	ok := false
	for _, code := range accepted {
		if status == code {
			ok = true
			break
		}
	}
	if !ok {
		var jerr server.Jerror
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		if json.Unmarshal(body, &jerr) == nil && jerr.Msg != "" {
			err = fmt.Errorf("%s returned %d: %s", path, status, jerr.Msg)
		} else {
			err = fmt.Errorf("%s returned %d", path, status)
		}
		return
	}

	err = json.NewDecoder(response.Body).Decode(dest)
	if err != nil {
		err = fmt.Errorf("invalid %s response: %v", path, err)
		return
	}
	return
}

// Formats one snapshot as a fixed layout text block
func renderSnapshot(state snapshot, width int) (view string) {
	if width < 40 {
		width = 40
	}
	var out strings.Builder
	rule := strings.Repeat("-", width)

	fmt.Fprintf(&out, "%s %s  %s\n%s\n", global.ProgBaseName, global.ProgVersion, state.At.Format(time.TimeOnly), rule)

	switch {
	case state.Health != nil:
		fmt.Fprintf(&out, "Health    %s since %s\n", state.Health.State, state.Health.Since.Format(time.TimeOnly))
		if state.Health.Error != "" {
			fmt.Fprintf(&out, "Error     %s\n", state.Health.Error)
		}
		fmt.Fprintf(&out, "Vehicle   %s\n", state.Health.Vehicle)
	case state.HealthErr != nil:
		fmt.Fprintf(&out, "Health    unavailable (%v)\n", state.HealthErr)
	}
	fmt.Fprintln(&out, rule)

	if state.Navdata == nil {
		reason := "no telemetry yet"
		if state.NavErr != nil {
			reason = state.NavErr.Error()
		}
		fmt.Fprintf(&out, "Navdata   %s\n", reason)
		view = out.String()
		return
	}

	record := state.Navdata.Navdata
	fmt.Fprintf(&out, "Sequence  %d\n", record.Sequence)
	fmt.Fprintf(&out, "State     %s\n", truncate(strings.Join(record.State.Names(), " "), width-10))
	if demo := record.Demo; demo != nil {
		fmt.Fprintf(&out, "Battery   %d%%\n", demo.Battery)
		fmt.Fprintf(&out, "Altitude  %d mm\n", demo.Altitude)
		fmt.Fprintf(&out, "Attitude  pitch %d  roll %d  yaw %d\n", demo.Theta, demo.Phi, demo.Psi)
		fmt.Fprintf(&out, "Velocity  %.1f %.1f %.1f\n", demo.VX, demo.VY, demo.VZ)
	}
	fmt.Fprintf(&out, "Video     %.1f fps\n", state.Navdata.FrameRate)

	view = out.String()
	return
}

func truncate(text string, limit int) string {
	if limit <= 3 || len(text) <= limit {
		return text
	}
	return text[:limit-3] + "..."
}
