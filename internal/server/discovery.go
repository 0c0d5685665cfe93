package server

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/metrics"
	"net/http"
	"strings"
)

// Handles metric search to discover metrics (returns no actual data, only sample metric per individual metric)
func handleDiscovery(baseCtx context.Context, discover Discoverer, serverResponder http.ResponseWriter, clientRequest *http.Request) {
	rawNamespace := strings.Trim(strings.TrimPrefix(clientRequest.URL.Path, global.DiscoveryPath), "/")

	filter := metrics.DiscoverFilter{
		Name:        clientRequest.FormValue("name"),
		Description: clientRequest.FormValue("description"),
		Unit:        clientRequest.FormValue("unit"),
	}
	if rawNamespace != "" {
		filter.Namespace = strings.Split(rawNamespace, "/")
	}

	rawType := clientRequest.FormValue("type")
	switch metrics.MetricType(strings.ToLower(rawType)) {
	case metrics.Counter:
		filter.Type = metrics.Counter
	case metrics.Gauge:
		filter.Type = metrics.Gauge
	case metrics.Summary:
		filter.Type = metrics.Summary
	default:
		// Empty is valid
		if rawType != "" {
			serverResponder.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	// Query internal metric registry
	results := metrics.ConvertAll(discover(filter))

	if len(results) == 0 {
		jResp(baseCtx, serverResponder, http.StatusOK, Jerror{Msg: "Search returned no results"})
	} else {
		jResp(baseCtx, serverResponder, http.StatusOK, results)
	}
}
