package video

import "time"

// Vehicle hardware generation, selects the video transport
type Generation int

const (
	GenerationDatagram Generation = 1 // first generation: UDP, UVLC pictures
	GenerationStream   Generation = 2 // second generation: TCP, PaVE framed H.264
)

const (
	CodecUnknown uint8 = iota
	CodecUVLC
	CodecP264
	CodecMPEG4Visual
	CodecMPEG4AVC
)

const (
	FrameTypeUnknown uint8 = iota
	FrameTypeIDR
	FrameTypeI
	FrameTypeP
	FrameTypeHeaders
)

// Encoded picture as received from the vehicle
type Frame struct {
	Generation  Generation `json:"generation"`
	Codec       uint8      `json:"codec"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	FrameNumber uint32     `json:"frame_number"`
	Timestamp   uint32     `json:"timestamp"` // ms, vehicle clock
	FrameType   uint8      `json:"frame_type"`
	Payload     []byte     `json:"-"`
	ReceivedAt  time.Time  `json:"received_at"`
}

func (gen Generation) String() string {
	switch gen {
	case GenerationDatagram:
		return "datagram"
	case GenerationStream:
		return "stream"
	default:
		return "unknown"
	}
}
