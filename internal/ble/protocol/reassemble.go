package protocol

// Reassembler rebuilds frames from a fragment stream on the receiving
// side. Index 0 starts a new frame; a fragment whose id or index does not
// follow the previous one discards the partial frame and counts a gap.
type Reassembler struct {
	onFrame func(frame []byte)

	buf       []byte
	active    bool
	lastID    uint16
	lastIndex uint8
	haveID    bool

	frames int
	gaps   int
}

// NewReassembler returns a Reassembler that calls onFrame with every
// completed frame. The slice passed to onFrame is owned by the callee.
func NewReassembler(onFrame func(frame []byte)) *Reassembler {
	return &Reassembler{onFrame: onFrame}
}

// Push feeds one raw fragment.
func (r *Reassembler) Push(b []byte) error {
	frag, err := ParseFragment(b)
	if err != nil {
		return err
	}

	idGap := r.haveID && frag.ID != r.lastID+1
	r.lastID = frag.ID
	r.haveID = true

	if frag.Index == 0 {
		if idGap {
			// The missing fragments may be the tail of the current frame.
			r.gaps++
			r.active = false
		}
		r.Flush()
		r.buf = append(r.buf[:0], frag.Payload...)
		r.active = true
		r.lastIndex = 0
		return nil
	}

	if !r.active || idGap || frag.Index != r.lastIndex+1 {
		// Lost the head or a middle fragment; wait for the next index 0.
		if r.active || idGap {
			r.gaps++
		}
		r.active = false
		r.buf = r.buf[:0]
		return nil
	}

	r.buf = append(r.buf, frag.Payload...)
	r.lastIndex = frag.Index
	return nil
}

// Flush emits the frame being assembled, if any.
func (r *Reassembler) Flush() {
	if !r.active || len(r.buf) == 0 {
		r.active = false
		return
	}
	frame := make([]byte, len(r.buf))
	copy(frame, r.buf)
	r.buf = r.buf[:0]
	r.active = false
	r.frames++
	if r.onFrame != nil {
		r.onFrame(frame)
	}
}

// Frames returns the number of frames emitted so far.
func (r *Reassembler) Frames() int { return r.frames }

// Gaps returns the number of discontinuities observed so far.
func (r *Reassembler) Gaps() int { return r.gaps }
