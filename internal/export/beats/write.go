package beats

import (
	"context"
	"dronefeed/internal/export"
	"dronefeed/internal/global"
	"fmt"
	"os"
)

// Sends one telemetry event
func (publisher *Publisher) PublishNavdata(ctx context.Context, message export.NavdataMessage) (err error) {
	record := message.Navdata

	fields := baseFields(message.Session, message.Hostname)
	fields["@timestamp"] = record.ReceivedAt
	fields["message"] = fmt.Sprintf("navdata sequence %d state 0x%08x", record.Sequence, uint32(record.State))
	fields["navdata"] = map[string]interface{}{
		"header":      record.Header,
		"sequence":    record.Sequence,
		"state":       uint32(record.State),
		"flags":       record.State.Names(),
		"vision_flag": record.VisionFlag,
		"checksum":    record.Checksum,
	}
	if record.Demo != nil {
		fields["demo"] = map[string]interface{}{
			"control_state": record.Demo.ControlState,
			"battery":       record.Demo.Battery,
			"theta":         record.Demo.Theta,
			"phi":           record.Demo.Phi,
			"psi":           record.Demo.Psi,
			"altitude":      record.Demo.Altitude,
			"vx":            record.Demo.VX,
			"vy":            record.Demo.VY,
			"vz":            record.Demo.VZ,
		}
	}

	err = publisher.send(fields)
	return
}

// Sends frame metadata. Picture bytes are never forwarded to beats.
func (publisher *Publisher) PublishFrame(ctx context.Context, message export.FrameMessage) (err error) {
	frame := message.Frame

	fields := baseFields(message.Session, message.Hostname)
	fields["@timestamp"] = frame.ReceivedAt
	fields["message"] = fmt.Sprintf("video frame %d %dx%d", frame.FrameNumber, frame.Width, frame.Height)
	fields["video"] = map[string]interface{}{
		"generation":   frame.Generation.String(),
		"codec":        frame.Codec,
		"width":        frame.Width,
		"height":       frame.Height,
		"frame_number": frame.FrameNumber,
		"timestamp":    frame.Timestamp,
		"frame_type":   frame.FrameType,
		"bytes":        len(frame.Payload),
	}

	err = publisher.send(fields)
	return
}

func (publisher *Publisher) send(fields map[string]interface{}) (err error) {
	if publisher == nil || publisher.sink == nil {
		err = fmt.Errorf("beats output not connected")
		return
	}

	sent, err := publisher.sink.Send([]interface{}{fields})
	if err != nil {
		err = fmt.Errorf("failed to send event: %w", err)
		return
	}
	if sent != 1 {
		err = fmt.Errorf("server acknowledged %d of 1 events", sent)
		return
	}
	return
}

func baseFields(session, hostname string) (fields map[string]interface{}) {
	fields = map[string]interface{}{
		"host": map[string]interface{}{
			"name":     hostname,
			"hostname": hostname,
		},
		"agent": map[string]interface{}{
			"program": global.ProgBaseName,
			"version": global.ProgVersion,
			"type":    "dronefeed",
			"pid":     os.Getpid(),
			"id":      session,
		},
	}
	return
}
