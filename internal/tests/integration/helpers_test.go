package integration

import (
	"context"
	"dronefeed/internal/logctx"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"
)

// Uses logger in context to search logger buffer for events matching filter (must match all 3 filters if filters are not empty)
func filterLogBuffer(ctx context.Context, searchText, searchTag, searchSeverity string) (matches string, found bool) {
	logger := logctx.GetLogger(ctx)
	if logger == nil {
		return
	}

	var foundLines []string
	tagRe := regexp.MustCompile(`\[[^\]]*\]`)
	for _, line := range logger.GetFormattedLogLines() {
		if searchTag != "" {
			tagged := false
			for _, bracket := range tagRe.FindAllString(line, -1) {
				if strings.Contains(bracket, searchTag) {
					tagged = true
					break
				}
			}
			if !tagged {
				continue
			}
		}
		if searchSeverity != "" && !strings.Contains(line, "["+searchSeverity+"]") {
			continue
		}
		if searchText != "" && !strings.Contains(line, searchText) {
			continue
		}
		foundLines = append(foundLines, line)
		found = true
	}

	matches = strings.Join(foundLines, "")
	return
}

func freePort(t *testing.T, network string) (port int) {
	t.Helper()
	switch network {
	case "udp4":
		conn, err := net.ListenUDP(network, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			t.Fatalf("failed to find free port: %v", err)
		}
		defer conn.Close()
		port = conn.LocalAddr().(*net.UDPAddr).Port
	default:
		listener, err := net.Listen(network, "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to find free port: %v", err)
		}
		defer listener.Close()
		port = listener.Addr().(*net.TCPAddr).Port
	}
	return
}

// Polls until cond holds or the deadline passes
func eventually(t *testing.T, what string, timeout time.Duration, cond func() (bool, error)) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		ok, err := cond()
		if ok {
			return
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s (last error: %v)", what, lastErr)
}

// Issues a GET, optionally with a bearer token, and decodes a JSON body into dest when given
func getJSON(baseURL, path, token string, dest any) (status int, header http.Header, err error) {
	request, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	response, err := client.Do(request)
	if err != nil {
		return
	}
	defer response.Body.Close()

	status = response.StatusCode
	header = response.Header
	if dest == nil || status != http.StatusOK {
		_, err = io.Copy(io.Discard, response.Body)
		return
	}
	err = json.NewDecoder(response.Body).Decode(dest)
	if err != nil {
		err = fmt.Errorf("invalid %s body: %v", path, err)
	}
	return
}
