// HTTP server exposing the newest vehicle state, health and metric queries
package server

import (
	"bytes"
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// Read in web static files at compile time
//
//go:embed static-files/help.html
var webFiles embed.FS

// Sets up HTTP listener configuration for state and metric querying
func SetupListener(ctx context.Context, config Config, state StateSource, health HealthFunc, search DataSearcher, discover Discoverer) (server *http.Server, err error) {
	if config.ListenAddr == "" {
		config.ListenAddr = global.HTTPListenAddr
	}
	if config.Port == 0 {
		config.Port = global.HTTPListenPort
	}

	requestMultiplexer := http.NewServeMux()

	helpPage, err := webFiles.ReadFile("static-files/help.html")
	if err != nil {
		err = fmt.Errorf("failed reading help html page from internal fs: %v", err)
		return
	}

	// Replace variables in html with globals
	replacer := strings.NewReplacer(
		"@@LISTEN_ADDR@@", config.ListenAddr,
		"@@LISTEN_PORT@@", strconv.Itoa(config.Port),
		"@@NAVDATA_PATH@@", global.NavdataPath,
		"@@FRAME_PATH@@", global.FramePath,
		"@@IMAGE_PATH@@", global.ImagePath,
		"@@HEALTH_PATH@@", global.HealthPath,
		"@@DATA_PATH@@", global.DataPath,
		"@@DISCOVER_PATH@@", global.DiscoveryPath,
	)
	helpPage = []byte(replacer.Replace(string(helpPage)))

	// Root help page
	requestMultiplexer.HandleFunc("/", getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		if clientRequest.URL.Path != "/" {
			serverResponder.WriteHeader(http.StatusNotFound)
			return
		}

		serverResponder.Header().Set("Content-Type", "text/html; charset=utf-8")
		serverResponder.WriteHeader(http.StatusOK)
		serverResponder.Write(helpPage)
	}))

	requestMultiplexer.HandleFunc(global.NavdataPath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleNavdata(ctx, state, serverResponder, clientRequest)
	}))
	requestMultiplexer.HandleFunc(global.FramePath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleFrame(ctx, state, serverResponder, clientRequest)
	}))
	requestMultiplexer.HandleFunc(global.ImagePath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleImage(ctx, state, serverResponder, clientRequest)
	}))
	requestMultiplexer.HandleFunc(global.HealthPath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleHealth(ctx, health, serverResponder, clientRequest)
	}))

	// Metric Discovery Requests
	requestMultiplexer.HandleFunc(global.DiscoveryPath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleDiscovery(ctx, discover, serverResponder, clientRequest)
	}))

	// Metric Data Requests
	requestMultiplexer.HandleFunc(global.DataPath, getOnly(func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		handleData(ctx, search, serverResponder, clientRequest)
	}))

	var handler http.Handler = requestMultiplexer
	if config.AuthSecret != "" {
		handler = requireBearer(ctx, []byte(config.AuthSecret), requestMultiplexer)
	}

	// Server configuration
	server = &http.Server{
		Addr:         net.JoinHostPort(config.ListenAddr, strconv.Itoa(config.Port)),
		Handler:      handler,
		ReadTimeout:  global.HTTPReadTimeout,
		WriteTimeout: global.HTTPWriteTimeout,
		IdleTimeout:  global.HTTPIdleTimeout,
		ErrorLog:     log.New(httpLogWriter{ctx: ctx}, "", 0),
	}
	return
}

// Starts the HTTP server and waits for requests
func Start(ctx context.Context, server *http.Server) {
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog, "State server starting on %s (http://%s/)\n",
		server.Addr,
		server.Addr,
	)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "State server failed to start: %v\n", err)
	}
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(serverResponder http.ResponseWriter, clientRequest *http.Request) {
		if clientRequest.Method != http.MethodGet {
			serverResponder.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(serverResponder, clientRequest)
	}
}

// Encodes JSON and sends as response body
func jResp(ctx context.Context, serverResponder http.ResponseWriter, status int, content any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(content); err != nil {
		serverResponder.WriteHeader(http.StatusInternalServerError)
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Failed marshaling response: %v\n", err)
		return
	}
	serverResponder.Header().Set("Content-Type", "application/json")
	serverResponder.WriteHeader(status)
	serverResponder.Write(buf.Bytes())
}

// Logs HTTP server errors to internal program buffer (via context logger)
func (logWriter httpLogWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return
	}
	logctx.LogEvent(
		logWriter.ctx,
		global.VerbosityStandard,
		global.ErrorLog,
		"%s\n", strings.TrimSpace(string(p)),
	)
	return
}
