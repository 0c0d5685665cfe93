// First generation (UVLC) picture header reading
package video

import (
	"encoding/binary"
	"fmt"
)

const (
	pictureStartCode uint32 = 0x20 // 22 bit PSC
	formatCIF        uint32 = 1
	formatVGA        uint32 = 2
)

// Reads words little endian, bits most significant first
type bitReader struct {
	data   []byte
	offset int
	word   uint32
	left   int
}

func (reader *bitReader) read(n int) (value uint32, err error) {
	for i := 0; i < n; i++ {
		if reader.left == 0 {
			if reader.offset+4 > len(reader.data) {
				err = fmt.Errorf("picture header truncated at byte %d", reader.offset)
				return
			}
			reader.word = binary.LittleEndian.Uint32(reader.data[reader.offset : reader.offset+4])
			reader.offset += 4
			reader.left = 32
		}
		reader.left--
		value = value<<1 | (reader.word>>reader.left)&1
	}
	return
}

// Picture header fields in wire order
type PictureHeader struct {
	Format     uint32
	Resolution uint32
	Type       uint32
	Quantizer  uint32
	Frame      uint32
}

// Parses the picture layer header at the start of a datagram
func ReadPictureHeader(raw []byte) (header PictureHeader, err error) {
	reader := &bitReader{data: raw}

	psc, err := reader.read(22)
	if err != nil {
		return
	}
	if psc != pictureStartCode {
		err = fmt.Errorf("invalid picture start code %#x", psc)
		return
	}

	fields := []*uint32{&header.Format, &header.Resolution, &header.Type, &header.Quantizer, &header.Frame}
	widths := []int{2, 3, 3, 5, 32}
	for i, field := range fields {
		*field, err = reader.read(widths[i])
		if err != nil {
			return
		}
	}

	if header.Format != formatCIF && header.Format != formatVGA {
		err = fmt.Errorf("invalid picture format %d", header.Format)
		return
	}
	if header.Resolution == 0 {
		err = fmt.Errorf("invalid picture resolution 0")
		return
	}
	return
}

// Picture dimensions for the header format and resolution scale
func (header PictureHeader) Dimensions() (width, height int) {
	scale := 1 << (header.Resolution - 1)
	if header.Format == formatCIF {
		width, height = 88*scale, 72*scale
	} else {
		width, height = 160*scale, 120*scale
	}
	return
}

// Reads picture metadata from one video datagram.
// The payload is the encoded picture, copied out of raw.
func ReadPicture(raw []byte) (width, height int, payload []byte, timestamp uint32, err error) {
	header, err := ReadPictureHeader(raw)
	if err != nil {
		return
	}

	width, height = header.Dimensions()
	payload = append([]byte(nil), raw...)
	timestamp = header.Frame
	return
}

// Builds a picture header (padded to whole words) for the given fields
func EncodePictureHeader(header PictureHeader) (raw []byte) {
	var words []uint32
	var word uint32
	used := 0

	write := func(value uint32, n int) {
		for i := n - 1; i >= 0; i-- {
			word = word<<1 | (value>>i)&1
			used++
			if used == 32 {
				words = append(words, word)
				word, used = 0, 0
			}
		}
	}

	write(pictureStartCode, 22)
	write(header.Format, 2)
	write(header.Resolution, 3)
	write(header.Type, 3)
	write(header.Quantizer, 5)
	write(header.Frame, 32)
	if used > 0 {
		words = append(words, word<<(32-used))
	}

	for _, w := range words {
		raw = binary.LittleEndian.AppendUint32(raw, w)
	}
	return
}
