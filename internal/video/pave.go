// Second generation (PaVE framed) video stream sink
package video

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

var paveSignature = []byte("PaVE")

const (
	PaVEMinHeaderLen int = 32
	PaVEMaxHeaderLen int = 256
	PaVEMaxPayload   int = 4 * 1024 * 1024
)

// Stateful sink fed raw stream chunks.
// Frames completed by a Write are handed to emit before Write returns.
type StreamSink struct {
	buffer  []byte
	emit    func(Frame)
	Metrics SinkMetrics
}

type SinkMetrics struct {
	Frames       atomic.Uint64 // completed frames
	Bytes        atomic.Uint64 // stream bytes written
	Resyncs      atomic.Uint64 // times the sink skipped data to find a signature
	SkippedBytes atomic.Uint64 // bytes discarded while resynchronising
	Pending      atomic.Uint64 // bytes held for an incomplete frame
}

// PaVE header fields
type PaVEHeader struct {
	Version       uint8
	Codec         uint8
	HeaderSize    uint16
	PayloadSize   uint32
	EncodedWidth  uint16
	EncodedHeight uint16
	DisplayWidth  uint16
	DisplayHeight uint16
	FrameNumber   uint32
	Timestamp     uint32
	TotalChunks   uint8
	ChunkIndex    uint8
	FrameType     uint8
	Control       uint8
}

func NewStreamSink(emit func(Frame)) (sink *StreamSink) {
	sink = &StreamSink{
		emit: emit,
	}
	return
}

// Appends stream bytes and emits every frame they complete
func (sink *StreamSink) Write(chunk []byte) (n int, err error) {
	n = len(chunk)
	sink.Metrics.Bytes.Add(uint64(n))
	defer func() { sink.Metrics.Pending.Store(uint64(len(sink.buffer))) }()

	sink.buffer = append(sink.buffer, chunk...)

	for {
		start := bytes.Index(sink.buffer, paveSignature)
		if start < 0 {
			// Keep a possible partial signature at the tail
			keep := len(paveSignature) - 1
			if len(sink.buffer) > keep {
				sink.skip(len(sink.buffer) - keep)
			}
			return
		}
		if start > 0 {
			sink.skip(start)
		}

		if len(sink.buffer) < PaVEMinHeaderLen {
			return
		}

		header, parseErr := ParsePaVEHeader(sink.buffer)
		if parseErr != nil {
			// Signature match inside payload data, move past it
			sink.skip(1)
			continue
		}

		frameLen := int(header.HeaderSize) + int(header.PayloadSize)
		if len(sink.buffer) < frameLen {
			return
		}

		frame := Frame{
			Generation:  GenerationStream,
			Codec:       header.Codec,
			Width:       int(header.DisplayWidth),
			Height:      int(header.DisplayHeight),
			FrameNumber: header.FrameNumber,
			Timestamp:   header.Timestamp,
			FrameType:   header.FrameType,
			Payload:     append([]byte(nil), sink.buffer[header.HeaderSize:frameLen]...),
			ReceivedAt:  time.Now(),
		}
		sink.buffer = sink.buffer[frameLen:]
		sink.Metrics.Frames.Add(1)

		if sink.emit != nil {
			sink.emit(frame)
		}
	}
}

// Count of bytes held waiting for the rest of a frame, safe from any goroutine
func (sink *StreamSink) Buffered() (pending int) {
	pending = int(sink.Metrics.Pending.Load())
	return
}

func (sink *StreamSink) skip(n int) {
	sink.Metrics.Resyncs.Add(1)
	sink.Metrics.SkippedBytes.Add(uint64(n))
	sink.buffer = append(sink.buffer[:0], sink.buffer[n:]...)
}

// Parses and sanity checks a PaVE header at the start of raw
func ParsePaVEHeader(raw []byte) (header PaVEHeader, err error) {
	if len(raw) < PaVEMinHeaderLen {
		err = fmt.Errorf("PaVE header truncated: %d bytes", len(raw))
		return
	}
	if !bytes.Equal(raw[0:4], paveSignature) {
		err = fmt.Errorf("missing PaVE signature")
		return
	}

	header = PaVEHeader{
		Version:       raw[4],
		Codec:         raw[5],
		HeaderSize:    binary.LittleEndian.Uint16(raw[6:8]),
		PayloadSize:   binary.LittleEndian.Uint32(raw[8:12]),
		EncodedWidth:  binary.LittleEndian.Uint16(raw[12:14]),
		EncodedHeight: binary.LittleEndian.Uint16(raw[14:16]),
		DisplayWidth:  binary.LittleEndian.Uint16(raw[16:18]),
		DisplayHeight: binary.LittleEndian.Uint16(raw[18:20]),
		FrameNumber:   binary.LittleEndian.Uint32(raw[20:24]),
		Timestamp:     binary.LittleEndian.Uint32(raw[24:28]),
		TotalChunks:   raw[28],
		ChunkIndex:    raw[29],
		FrameType:     raw[30],
		Control:       raw[31],
	}

	if int(header.HeaderSize) < PaVEMinHeaderLen || int(header.HeaderSize) > PaVEMaxHeaderLen {
		err = fmt.Errorf("implausible PaVE header size %d", header.HeaderSize)
		return
	}
	if int(header.PayloadSize) > PaVEMaxPayload {
		err = fmt.Errorf("implausible PaVE payload size %d", header.PayloadSize)
		return
	}
	return
}

// Builds a framed PaVE unit with a 64 byte header
func EncodePaVE(header PaVEHeader, payload []byte) (raw []byte) {
	const headerLen = 64

	raw = make([]byte, headerLen, headerLen+len(payload))
	copy(raw[0:4], paveSignature)
	raw[4] = header.Version
	raw[5] = header.Codec
	binary.LittleEndian.PutUint16(raw[6:8], headerLen)
	binary.LittleEndian.PutUint32(raw[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint16(raw[12:14], header.EncodedWidth)
	binary.LittleEndian.PutUint16(raw[14:16], header.EncodedHeight)
	binary.LittleEndian.PutUint16(raw[16:18], header.DisplayWidth)
	binary.LittleEndian.PutUint16(raw[18:20], header.DisplayHeight)
	binary.LittleEndian.PutUint32(raw[20:24], header.FrameNumber)
	binary.LittleEndian.PutUint32(raw[24:28], header.Timestamp)
	raw[28] = header.TotalChunks
	raw[29] = header.ChunkIndex
	raw[30] = header.FrameType
	raw[31] = header.Control

	raw = append(raw, payload...)
	return
}
