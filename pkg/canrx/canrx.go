// Package canrx extracts integers from received CAN payloads and decodes the
// frames the trim core consumes.
package canrx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PayloadSize is the classical CAN data length
const PayloadSize = 8

var (
	ErrShortFrame = errors.New("canrx: frame too short")
	ErrWrongID    = errors.New("canrx: unexpected frame id")
)

// Frame is a received classical CAN frame
type Frame struct {
	ID   uint32
	DLC  uint8
	Data [PayloadSize]byte
}

// GetFourBytesLsb reads a little-endian uint32 at offset.
// The caller guarantees offset+4 <= 8.
func GetFourBytesLsb(f *Frame, offset int) uint32 {
	return binary.LittleEndian.Uint32(f.Data[offset : offset+4])
}

// GetTwoBytesLsb reads a little-endian uint16 at offset.
// The caller guarantees offset+2 <= 8.
func GetTwoBytesLsb(f *Frame, offset int) uint16 {
	return binary.LittleEndian.Uint16(f.Data[offset : offset+2])
}

// GetTwoBytesMsb reads a big-endian uint16 at offset.
// The caller guarantees offset+2 <= 8.
func GetTwoBytesMsb(f *Frame, offset int) uint16 {
	return binary.BigEndian.Uint16(f.Data[offset : offset+2])
}

// CheckRange reports whether width bytes at offset fit in the payload
// declared by the frame's DLC.
func CheckRange(f *Frame, offset, width int) error {
	if offset < 0 || width <= 0 || offset+width > PayloadSize || offset+width > int(f.DLC) {
		return fmt.Errorf("%w: need %d bytes at offset %d, dlc %d", ErrShortFrame, width, offset, f.DLC)
	}
	return nil
}
