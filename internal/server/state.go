package server

import (
	"bytes"
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"image/png"
	"net/http"
	"strconv"
	"time"
)

func handleNavdata(ctx context.Context, state StateSource, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	record, ok := state.Navdata()
	if !ok {
		jResp(ctx, serverResponder, http.StatusNotFound, Jerror{Msg: "No navdata received yet"})
		return
	}
	jResp(ctx, serverResponder, http.StatusOK, NavdataResponse{
		Navdata:   record,
		FrameRate: state.FrameRate(),
	})
}

// Serves the encoded picture as received, metadata goes in headers
func handleFrame(ctx context.Context, state StateSource, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	frame, ok := state.Frame()
	if !ok {
		jResp(ctx, serverResponder, http.StatusNotFound, Jerror{Msg: "No video frame received yet"})
		return
	}

	header := serverResponder.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Content-Length", strconv.Itoa(len(frame.Payload)))
	header.Set("X-Frame-Generation", frame.Generation.String())
	header.Set("X-Frame-Codec", strconv.Itoa(int(frame.Codec)))
	header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	header.Set("X-Frame-Height", strconv.Itoa(frame.Height))
	header.Set("X-Frame-Number", strconv.FormatUint(uint64(frame.FrameNumber), 10))
	header.Set("X-Frame-Timestamp", strconv.FormatUint(uint64(frame.Timestamp), 10))
	header.Set("X-Frame-Received", frame.ReceivedAt.Format(time.RFC3339Nano))
	serverResponder.WriteHeader(http.StatusOK)
	serverResponder.Write(frame.Payload)
}

func handleImage(ctx context.Context, state StateSource, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	img, ok := state.Image()
	if !ok {
		jResp(ctx, serverResponder, http.StatusNotFound, Jerror{Msg: "No decoded image available"})
		return
	}

	buf := new(bytes.Buffer)
	err := png.Encode(buf, img)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog, "Failed encoding image: %v\n", err)
		serverResponder.WriteHeader(http.StatusInternalServerError)
		return
	}

	if frameNumber, ok := state.ImageFrameNumber(); ok {
		serverResponder.Header().Set("X-Frame-Number", strconv.FormatUint(uint64(frameNumber), 10))
	}
	serverResponder.Header().Set("Content-Type", "image/png")
	serverResponder.WriteHeader(http.StatusOK)
	serverResponder.Write(buf.Bytes())
}

func handleHealth(ctx context.Context, health HealthFunc, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	if health == nil {
		jResp(ctx, serverResponder, http.StatusOK, map[string]string{"state": "unknown"})
		return
	}

	report, healthy := health()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	jResp(ctx, serverResponder, status, report)
}
