package daemon

import (
	"sync"
	"time"
)

type HealthState string

const (
	HealthStarting HealthState = "starting"
	HealthRunning  HealthState = "running"
	HealthStopped  HealthState = "stopped"
	HealthFailed   HealthState = "failed"
)

// Collector outcome as seen by the daemon
type Health struct {
	mu        sync.RWMutex
	state     HealthState
	lastErr   error
	changedAt time.Time
	session   string
	vehicle   string
	forwarded func() (navdataAt, videoAt time.Time)
}

type HealthReport struct {
	State       HealthState `json:"state"`
	Error       string      `json:"error,omitempty"`
	Since       time.Time   `json:"since"`
	Session     string      `json:"session"`
	Vehicle     string      `json:"vehicle"`
	LastNavdata *time.Time  `json:"last_navdata,omitempty"`
	LastVideo   *time.Time  `json:"last_video,omitempty"`
}

func newHealth(session, vehicle string, forwarded func() (time.Time, time.Time)) (health *Health) {
	health = &Health{
		state:     HealthStarting,
		changedAt: time.Now(),
		session:   session,
		vehicle:   vehicle,
		forwarded: forwarded,
	}
	return
}

func (health *Health) set(state HealthState, err error) {
	health.mu.Lock()
	defer health.mu.Unlock()

	// Failure is terminal
	if health.state == HealthFailed {
		return
	}
	health.state = state
	health.lastErr = err
	health.changedAt = time.Now()
}

func (health *Health) Report() (report HealthReport) {
	health.mu.RLock()
	report = HealthReport{
		State:   health.state,
		Since:   health.changedAt,
		Session: health.session,
		Vehicle: health.vehicle,
	}
	if health.lastErr != nil {
		report.Error = health.lastErr.Error()
	}
	health.mu.RUnlock()

	if health.forwarded != nil {
		navdataAt, videoAt := health.forwarded()
		if !navdataAt.IsZero() {
			report.LastNavdata = &navdataAt
		}
		if !videoAt.IsZero() {
			report.LastVideo = &videoAt
		}
	}
	return
}

// Only a failed collector is unhealthy
func (health *Health) Healthy() (report any, healthy bool) {
	current := health.Report()
	report = current
	healthy = current.State != HealthFailed
	return
}
