package navdata

import (
	"encoding/binary"
	"math"
)

// Serializes record into the wire layout, appending a checksum option.
// Options are written after the demo block in their stored order.
func Encode(record Record) (raw []byte) {
	header := record.Header
	if header == 0 {
		header = HeaderMagic
	}

	raw = binary.LittleEndian.AppendUint32(raw, header)
	raw = binary.LittleEndian.AppendUint32(raw, uint32(record.State))
	raw = binary.LittleEndian.AppendUint32(raw, record.Sequence)
	raw = binary.LittleEndian.AppendUint32(raw, record.VisionFlag)

	if record.Demo != nil {
		demo := record.Demo
		raw = appendOptionHeader(raw, TagDemo, DemoPayloadLen)
		raw = binary.LittleEndian.AppendUint32(raw, demo.ControlState)
		raw = binary.LittleEndian.AppendUint32(raw, demo.Battery)
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(float32(demo.Theta)*1000))
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(float32(demo.Phi)*1000))
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(float32(demo.Psi)*1000))
		raw = binary.LittleEndian.AppendUint32(raw, demo.Altitude)
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(demo.VX))
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(demo.VY))
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(demo.VZ))
		raw = binary.LittleEndian.AppendUint32(raw, demo.NumFrames)
	}

	for _, option := range record.Options {
		raw = appendOptionHeader(raw, option.Tag, len(option.Data))
		raw = append(raw, option.Data...)
	}

	sum := Checksum(raw)
	raw = appendOptionHeader(raw, TagChecksum, 4)
	raw = binary.LittleEndian.AppendUint32(raw, sum)
	return
}

func appendOptionHeader(raw []byte, tag uint16, payloadLen int) []byte {
	raw = binary.LittleEndian.AppendUint16(raw, tag)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(payloadLen+OptionHeaderLen))
	return raw
}
