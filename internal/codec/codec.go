// Package codec turns blocks of 16-bit PCM into the frames streamed to
// the phone. The identifier of the active encoder is served by the audio
// codec characteristic.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/pendant/internal/ble/protocol"
)

// Encoder encodes one block of samples into a frame.
type Encoder interface {
	// ID is the codec identifier advertised to the peer.
	ID() byte
	// Name is the configuration name of the codec.
	Name() string
	// Encode appends the encoded block to dst and returns the result.
	Encode(dst []byte, pcm []int16) []byte
	// FrameBytes is the encoded size of a block of n samples.
	FrameBytes(n int) int
}

// New returns the encoder called name.
func New(name string) (Encoder, error) {
	switch name {
	case "", "pcm16":
		return PCM16{}, nil
	case "pcm8":
		return PCM8{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

// PCM16 sends samples unchanged as little-endian int16.
type PCM16 struct{}

func (PCM16) ID() byte             { return protocol.AudioCodecPCM16 }
func (PCM16) Name() string         { return "pcm16" }
func (PCM16) FrameBytes(n int) int { return 2 * n }

func (PCM16) Encode(dst []byte, pcm []int16) []byte {
	for _, s := range pcm {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// PCM8 keeps the high byte of each sample, halving the bit rate.
type PCM8 struct{}

func (PCM8) ID() byte             { return protocol.AudioCodecPCM8 }
func (PCM8) Name() string         { return "pcm8" }
func (PCM8) FrameBytes(n int) int { return n }

func (PCM8) Encode(dst []byte, pcm []int16) []byte {
	for _, s := range pcm {
		dst = append(dst, byte(s>>8))
	}
	return dst
}

// DecodePCM16 converts a little-endian int16 frame back to samples.
func DecodePCM16(frame []byte) []int16 {
	out := make([]int16, len(frame)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	return out
}

// DecodePCM8 widens an 8-bit frame to 16-bit samples.
func DecodePCM8(frame []byte) []int16 {
	out := make([]int16, len(frame))
	for i, b := range frame {
		out[i] = int16(int8(b)) << 8
	}
	return out
}

// Decode reverses the encoder identified by id.
func Decode(id byte, frame []byte) ([]int16, error) {
	switch id {
	case protocol.AudioCodecPCM16:
		return DecodePCM16(frame), nil
	case protocol.AudioCodecPCM8:
		return DecodePCM8(frame), nil
	default:
		return nil, fmt.Errorf("codec: unknown codec id %d", id)
	}
}
