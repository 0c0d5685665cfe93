package file

import (
	"context"
	"dronefeed/internal/export"
	"encoding/json"
	"fmt"
)

// One line of the recording
type entry struct {
	Kind string `json:"kind"`
	export.NavdataMessage
}

type frameEntry struct {
	Kind string `json:"kind"`
	export.FrameMessage
}

func (publisher *Publisher) PublishNavdata(ctx context.Context, message export.NavdataMessage) (err error) {
	line, err := json.Marshal(entry{Kind: "navdata", NavdataMessage: message})
	if err != nil {
		err = fmt.Errorf("failed to serialize navdata: %v", err)
		return
	}
	err = publisher.buffer(line)
	return
}

// Frame payloads are never recorded
func (publisher *Publisher) PublishFrame(ctx context.Context, message export.FrameMessage) (err error) {
	message.Payload = nil
	line, err := json.Marshal(frameEntry{Kind: "frame", FrameMessage: message})
	if err != nil {
		err = fmt.Errorf("failed to serialize frame: %v", err)
		return
	}
	err = publisher.buffer(line)
	return
}

// Writes in batches of batchLines
func (publisher *Publisher) buffer(line []byte) (err error) {
	publisher.batchBuffer = append(publisher.batchBuffer, append(line, '\n'))
	if len(publisher.batchBuffer) >= batchLines {
		_, err = publisher.FlushBuffer()
	}
	return
}

// Writes buffered lines to the file in arrival order
func (publisher *Publisher) FlushBuffer() (flushedCnt int, err error) {
	for _, line := range publisher.batchBuffer {
		_, err = publisher.sink.Write(line)
		if err != nil {
			err = fmt.Errorf("failed to write recording: %v", err)
			publisher.batchBuffer = publisher.batchBuffer[flushedCnt:]
			return
		}
		flushedCnt++
	}
	publisher.batchBuffer = publisher.batchBuffer[:0]
	return
}
