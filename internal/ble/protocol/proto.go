// Package protocol implements the wire formats carried over the pendant's
// BLE characteristics: audio fragments, button event records and DFU
// control opcodes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FragmentHeaderSize is the size of the header prefixed to every audio
// fragment: a little-endian uint16 fragment id followed by a uint8
// index within the frame.
const FragmentHeaderSize = 3

// ErrShortFragment is returned when a fragment is smaller than its header.
var ErrShortFragment = errors.New("protocol: fragment shorter than header")

// Fragment is a decoded audio fragment.
type Fragment struct {
	ID      uint16
	Index   uint8
	Payload []byte
}

// AppendFragment appends the header and payload of one fragment to dst.
func AppendFragment(dst []byte, id uint16, index uint8, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, id)
	dst = append(dst, index)
	return append(dst, payload...)
}

// ParseFragment decodes a fragment. Payload aliases b.
func ParseFragment(b []byte) (Fragment, error) {
	if len(b) < FragmentHeaderSize {
		return Fragment{}, fmt.Errorf("%w: got %d bytes", ErrShortFragment, len(b))
	}
	return Fragment{
		ID:      binary.LittleEndian.Uint16(b[0:2]),
		Index:   b[2],
		Payload: b[FragmentHeaderSize:],
	}, nil
}

// ButtonEvent is the gesture code carried in a button record.
type ButtonEvent uint8

const (
	ButtonSingleTap ButtonEvent = 1
	ButtonDoubleTap ButtonEvent = 2
	ButtonLongTap   ButtonEvent = 3
	ButtonPress     ButtonEvent = 4
	ButtonRelease   ButtonEvent = 5
)

func (e ButtonEvent) String() string {
	switch e {
	case ButtonSingleTap:
		return "single_tap"
	case ButtonDoubleTap:
		return "double_tap"
	case ButtonLongTap:
		return "long_tap"
	case ButtonPress:
		return "press"
	case ButtonRelease:
		return "release"
	default:
		return fmt.Sprintf("button_event(%d)", uint8(e))
	}
}

// ButtonRecordSize is the size of an encoded button record.
const ButtonRecordSize = 8

// EncodeButtonEvent encodes a button record: two little-endian uint32
// words, the event code followed by a reserved zero.
func EncodeButtonEvent(e ButtonEvent) []byte {
	var buf [ButtonRecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e))
	return buf[:]
}

// DecodeButtonEvent decodes a button record.
func DecodeButtonEvent(b []byte) (ButtonEvent, error) {
	if len(b) < 1 {
		return 0, errors.New("protocol: empty button record")
	}
	return ButtonEvent(b[0]), nil
}

// DFU control point opcodes and values.
const (
	DFUOpStartDFU        byte = 0x01
	DFUOpEnterBootloader byte = 0x06
	DFUAck               byte = 0x10
	DFUMarker            byte = 0xA8
)

// AudioCodecPCM16 and AudioCodecPCM8 are the identifiers served by the
// audio codec characteristic.
const (
	AudioCodecPCM16 uint8 = 0
	AudioCodecPCM8  uint8 = 1
)
