// internal/ble/protocol/chunk.go
package protocol

// FragmentCount returns how many fragments a frame of frameLen bytes
// produces for the given link payload size. It returns 0 for an empty
// frame or a payload too small to carry any data.
func FragmentCount(frameLen, payloadSize int) int {
	room := payloadSize - FragmentHeaderSize
	if frameLen <= 0 || room <= 0 {
		return 0
	}
	return (frameLen + room - 1) / room
}

// Fragmenter splits frames into link-sized fragments. It owns the global
// fragment id, which wraps at 2^16 and is never reset for the life of
// the Fragmenter.
//
// A Fragmenter is not safe for concurrent use; the pusher is its only caller.
type Fragmenter struct {
	nextID uint16
}

// NextID returns the id the next fragment will carry.
func (f *Fragmenter) NextID() uint16 {
	return f.nextID
}

// Split cuts frame into fragments of at most payloadSize bytes each,
// header included, and calls emit once per fragment in index order.
// Each fragment slice is only valid for the duration of the emit call.
// It stops early if the frame would need more than 256 fragments or
// payloadSize leaves no room for data, and returns the number emitted.
func (f *Fragmenter) Split(frame []byte, payloadSize int, emit func(fragment []byte)) int {
	room := payloadSize - FragmentHeaderSize
	if len(frame) == 0 || room <= 0 {
		return 0
	}

	buf := make([]byte, 0, FragmentHeaderSize+min(room, len(frame)))
	var index int
	for len(frame) > 0 {
		if index > 0xFF {
			return index
		}
		n := min(room, len(frame))
		buf = AppendFragment(buf[:0], f.nextID, uint8(index), frame[:n])
		f.nextID++
		emit(buf)
		frame = frame[n:]
		index++
	}
	return index
}
