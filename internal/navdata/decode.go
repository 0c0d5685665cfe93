// Telemetry (navdata) datagram decoding
package navdata

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Decodes one navdata datagram.
// Fails on bad magic, truncated blocks or checksum mismatch.
func Decode(raw []byte) (record Record, err error) {
	record.ReceivedAt = time.Now()

	if len(raw) < HeaderLen {
		err = fmt.Errorf("datagram too short: %d bytes", len(raw))
		return
	}

	record.Header = binary.LittleEndian.Uint32(raw[0:4])
	if record.Header != HeaderMagic && record.Header != HeaderMagic2 {
		err = fmt.Errorf("invalid header magic %#08x", record.Header)
		return
	}
	record.State = State(binary.LittleEndian.Uint32(raw[4:8]))
	record.Sequence = binary.LittleEndian.Uint32(raw[8:12])
	record.VisionFlag = binary.LittleEndian.Uint32(raw[12:16])

	offset := HeaderLen
	for offset+OptionHeaderLen <= len(raw) {
		tag := binary.LittleEndian.Uint16(raw[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(raw[offset+2 : offset+4]))
		if size < OptionHeaderLen {
			err = fmt.Errorf("option %d at offset %d has invalid size %d", tag, offset, size)
			return
		}
		if offset+size > len(raw) {
			err = fmt.Errorf("option %d at offset %d overruns datagram (%d > %d)", tag, offset, offset+size, len(raw))
			return
		}
		data := raw[offset+OptionHeaderLen : offset+size]

		switch tag {
		case TagDemo:
			record.Demo, err = decodeDemo(data)
			if err != nil {
				return
			}
		case TagChecksum:
			if len(data) < 4 {
				err = fmt.Errorf("checksum option too short: %d bytes", len(data))
				return
			}
			record.Checksum = binary.LittleEndian.Uint32(data[0:4])

			computed := Checksum(raw[:offset])
			if computed != record.Checksum {
				err = fmt.Errorf("checksum mismatch: datagram carries %#x, computed %#x", record.Checksum, computed)
				return
			}
			// Checksum always terminates the option list
			return
		default:
			record.Options = append(record.Options, Option{
				Tag:  tag,
				Data: append([]byte(nil), data...),
			})
		}

		offset += size
	}
	return
}

func decodeDemo(data []byte) (demo *Demo, err error) {
	if len(data) < DemoPayloadLen {
		err = fmt.Errorf("demo option too short: %d bytes", len(data))
		return
	}

	float := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}

	demo = &Demo{
		ControlState: binary.LittleEndian.Uint32(data[0:4]),
		Battery:      binary.LittleEndian.Uint32(data[4:8]),
		// Millidegrees, precision beyond whole degrees is noise
		Theta:     int32(float(8) / 1000),
		Phi:       int32(float(12) / 1000),
		Psi:       int32(float(16) / 1000),
		Altitude:  binary.LittleEndian.Uint32(data[20:24]),
		VX:        float(24),
		VY:        float(28),
		VZ:        float(32),
		NumFrames: binary.LittleEndian.Uint32(data[36:40]),
	}
	return
}

// Byte sum used by the checksum option
func Checksum(data []byte) (sum uint32) {
	for _, b := range data {
		sum += uint32(b)
	}
	return
}
