package collector

import (
	"context"
	"dronefeed/internal/atomics"
	"dronefeed/internal/global"
	"dronefeed/internal/logctx"
	"dronefeed/internal/network"
	"fmt"
	"runtime/debug"
	"time"
)

const (
	navdataIndex int = 0
	videoIndex   int = 1
)

// Services the sockets until Stop, ctx cancellation or a fatal error.
// Sockets are closed before Run returns, whatever the outcome.
func (instance *Instance) Run(ctx context.Context) (err error) {
	ctx = logctx.OverwriteCtxTag(ctx, instance.Namespace)

	instance.mu.Lock()
	opened, spent := instance.opened, instance.spent
	instance.mu.Unlock()
	if spent {
		err = fmt.Errorf("collector already ran")
		return
	}
	if !opened {
		err = fmt.Errorf("collector not opened")
		return
	}
	defer instance.closeSockets(ctx)

	// Cancellation is delivered through the same control path as Stop
	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			instance.Stop()
		case <-runDone:
		}
	}()

	logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Collector loop started\n")

	for {
		if instance.stopRequested.Load() {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Collector stopping\n")
			return
		}

		var ready []bool
		var woken bool
		ready, woken, err = instance.poller.Wait()
		if err != nil {
			err = fmt.Errorf("failed waiting on feeds: %w", err)
			return
		}
		instance.Metrics.Wakes.Add(1)
		start := time.Now()

		// Data first, an in-flight wake still completes pending work
		if ready[videoIndex] {
			err = instance.video.service()
			if err != nil {
				err = fmt.Errorf("video feed: %w", err)
				return
			}
		}
		if ready[navdataIndex] {
			err = instance.serviceNavdata(ctx)
			if err != nil {
				err = fmt.Errorf("navdata feed: %w", err)
				return
			}
		}
		instance.Metrics.BusyNs.Add(uint64(time.Since(start)))

		if woken {
			instance.poller.ConsumeWake()
			logctx.LogEvent(ctx, global.VerbosityProgress, global.InfoLog, "Collector stopping\n")
			return
		}
	}
}

// Requests loop exit. Only the first call sends the control signal.
func (instance *Instance) Stop() {
	instance.stopOnce.Do(func() {
		instance.stopRequested.Store(true)

		// Wake under mu so the wait set cannot be closed underneath it
		instance.mu.Lock()
		if instance.poller != nil {
			instance.poller.Wake()
		}
		instance.mu.Unlock()
	})
}

// Drains the telemetry socket to its newest datagram, decodes it and forwards the record
func (instance *Instance) serviceNavdata(ctx context.Context) (err error) {
	latest, reads, err := network.DrainLatest(instance.navConn, instance.recvBuf, instance.config.MaxDrain)
	instance.Metrics.NavDatagrams.Add(uint64(reads))
	atomics.StoreMax(&instance.Metrics.MaxDrainReads, uint64(reads))
	if err != nil {
		return
	}
	if latest == nil {
		return
	}
	if reads > 1 {
		logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog, "Discarded %d stale navdata datagrams\n", reads-1)
	}

	start := time.Now()
	err = guard(func() (decodeErr error) {
		record, decodeErr := instance.decodeNavdata(latest)
		if decodeErr != nil {
			return
		}
		instance.navOut.Push(record)
		return
	})
	atomics.ObserveDuration(&instance.Metrics.LastDecodeNs, &instance.Metrics.MaxDecodeNs, uint64(time.Since(start)))
	if err != nil {
		err = fmt.Errorf("failed to decode navdata: %w", err)
		return
	}

	instance.Metrics.NavDecoded.Add(1)
	instance.Metrics.LastNavdataUnix.Store(time.Now().UnixNano())
	return
}

// Runs a decode step, converting a panic into an error
func guard(step func() error) (err error) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			err = fmt.Errorf("decoder panic: %v\n%s", fatalError, debug.Stack())
		}
	}()
	err = step()
	return
}

// Closes every socket and the wait set, errors are only logged
func (instance *Instance) closeSockets(ctx context.Context) {
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.closeSocketsLocked(ctx)
}

// Caller holds mu. Leaves the instance spent: neither Open nor Run will use it again.
func (instance *Instance) closeSocketsLocked(ctx context.Context) {
	if instance.video != nil {
		err := instance.video.close()
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "Failed to close video socket: %v\n", err)
		}
	}
	if instance.navConn != nil {
		err := instance.navConn.Close()
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog, "Failed to close navdata socket: %v\n", err)
		}
	}
	if instance.poller != nil {
		instance.poller.Close()
		instance.poller = nil
	}
	instance.opened = false
	instance.spent = true
}
