package server

import (
	"context"
	"dronefeed/internal/global"
	"dronefeed/internal/metrics"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestHandleData(t *testing.T) {
	ctx := context.Background()
	sample := []metrics.Metric{{Name: "datagrams_total", Namespace: []string{"Collector"}, Timestamp: time.Now()}}

	tests := []struct {
		name       string
		path       string
		results    []metrics.Metric
		wantStatus int
		wantError  bool
	}{
		{name: "default times", path: global.DataPath + "?name=test", wantStatus: http.StatusOK, wantError: true},
		{name: "invalid starttime", path: global.DataPath + "?starttime=badtime", wantStatus: http.StatusBadRequest},
		{name: "invalid relative start falls back to default", path: global.DataPath + "?starttime=-5w", wantStatus: http.StatusOK, wantError: true},
		// '+' decodes to a space in query strings, leaving an unparsable absolute time
		{name: "unescaped plus end time", path: global.DataPath + "?endtime=+2y", wantStatus: http.StatusBadRequest},
		{name: "relative start time past", path: global.DataPath + "?starttime=-5m", results: sample, wantStatus: http.StatusOK},
		{name: "absolute start time", path: global.DataPath + "?starttime=2001-01-02T01:02:03.001Z", results: sample, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)

			handleData(ctx, mockDataSearcher(tt.results), rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d want=%d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			if tt.wantError {
				var je Jerror
				if err := json.NewDecoder(rr.Body).Decode(&je); err != nil || je.Msg == "" {
					t.Fatalf("expected JSON error, decode err %v", err)
				}
				return
			}

			var got []metrics.JMetric
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatalf("failed decoding results: %v", err)
			}
			if len(got) != 1 || got[0].Name != "datagrams_total" || got[0].Namespace != "Collector" {
				t.Fatalf("unexpected results %+v", got)
			}
		})
	}
}

func TestHandleData_NamespaceFromPath(t *testing.T) {
	var gotNamespace []string
	search := func(name string, ns []string, start, end time.Time) []metrics.Metric {
		gotNamespace = ns
		return nil
	}

	tests := []struct {
		path string
		want []string
	}{
		{path: global.DataPath, want: nil},
		{path: global.DataPath + "Collector/Navdata/", want: []string{"Collector", "Navdata"}},
		{path: global.DataPath + "Relay", want: []string{"Relay"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			gotNamespace = []string{"sentinel"}
			rr := httptest.NewRecorder()
			handleData(context.Background(), search, rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if !reflect.DeepEqual(gotNamespace, tt.want) {
				t.Fatalf("namespace=%v want=%v", gotNamespace, tt.want)
			}
		})
	}
}
