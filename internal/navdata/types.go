package navdata

import (
	"slices"
	"time"
)

const (
	HeaderMagic  uint32 = 0x55667788 // first generation firmware
	HeaderMagic2 uint32 = 0x55667789 // second generation firmware

	HeaderLen       int = 16
	OptionHeaderLen int = 4
	DemoPayloadLen  int = 40

	TagDemo     uint16 = 0
	TagChecksum uint16 = 0xFFFF
)

// Decoded telemetry datagram
type Record struct {
	Header     uint32    `json:"header"`
	State      State     `json:"state"`
	Sequence   uint32    `json:"sequence"`
	VisionFlag uint32    `json:"vision_flag"`
	Demo       *Demo     `json:"demo,omitempty"`
	Options    []Option  `json:"options,omitempty"`
	Checksum   uint32    `json:"checksum"`
	ReceivedAt time.Time `json:"received_at"`
}

// Basic flight data (tag 0)
type Demo struct {
	ControlState uint32  `json:"control_state"`
	Battery      uint32  `json:"battery"`  // percent
	Theta        int32   `json:"theta"`    // pitch, degrees
	Phi          int32   `json:"phi"`      // roll, degrees
	Psi          int32   `json:"psi"`      // yaw, degrees
	Altitude     uint32  `json:"altitude"` // mm
	VX           float32 `json:"vx"`
	VY           float32 `json:"vy"`
	VZ           float32 `json:"vz"`
	NumFrames    uint32  `json:"num_frames"`
}

// Option block without a typed decoding
type Option struct {
	Tag  uint16 `json:"tag"`
	Data []byte `json:"data"`
}

// Deep copy sharing no memory with the receiver
func (record Record) Clone() (clone Record) {
	clone = record
	if record.Demo != nil {
		demo := *record.Demo
		clone.Demo = &demo
	}
	if record.Options != nil {
		clone.Options = make([]Option, len(record.Options))
		for i, option := range record.Options {
			clone.Options[i] = Option{Tag: option.Tag, Data: slices.Clone(option.Data)}
		}
	}
	return
}
