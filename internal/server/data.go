package server

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/metrics"
	"net/http"
	"strings"
	"time"
)

// Handles metric search requests based on time for data
func handleData(baseCtx context.Context, search DataSearcher, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	rawNamespace := strings.Trim(strings.TrimPrefix(clientRequest.URL.Path, global.DataPath), "/")

	var reqNamespace []string
	if rawNamespace != "" {
		reqNamespace = strings.Split(rawNamespace, "/")
	}

	reqName := clientRequest.FormValue("name")

	reqStartTime, reqEndTime, ok := parseTimeRange(clientRequest)
	if !ok {
		serverResponder.WriteHeader(http.StatusBadRequest)
		return
	}

	// Query internal metric registry
	results := metrics.ConvertAll(search(reqName, reqNamespace, reqStartTime, reqEndTime))

	if len(results) == 0 {
		jResp(baseCtx, serverResponder, http.StatusOK, Jerror{Msg: "Search returned no results"})
	} else {
		jResp(baseCtx, serverResponder, http.StatusOK, results)
	}
}

// Start defaults to the last minute and accepts RFC3339 or a signed duration.
// End defaults to now.
func parseTimeRange(clientRequest *http.Request) (start, end time.Time, ok bool) {
	var err error
	now := time.Now()

	rawStartTime := clientRequest.FormValue("starttime")
	if rawStartTime == "" {
		start = now.Add(-1 * time.Minute)
	} else if rawStartTime[0] == '-' || rawStartTime[0] == '+' {
		dur, err := time.ParseDuration(rawStartTime)
		if err == nil {
			start = now.Add(dur)
		} else {
			start = now.Add(-1 * time.Minute)
		}
	} else {
		start, err = time.Parse(time.RFC3339Nano, rawStartTime)
		if err != nil {
			return
		}
	}

	rawEndTime := clientRequest.FormValue("endtime")
	if rawEndTime == "now" || rawEndTime == "" {
		end = now
	} else {
		end, err = time.Parse(time.RFC3339Nano, rawEndTime)
		if err != nil {
			return
		}
	}

	ok = true
	return
}
