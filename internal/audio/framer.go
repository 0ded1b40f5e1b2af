package audio

// Framer cuts a continuous sample stream into blocks of a fixed size.
// It is not safe for concurrent use.
type Framer struct {
	size int
	buf  []int16
	emit func(block []int16)
}

// NewFramer returns a Framer emitting blocks of size samples. The block
// passed to emit is a fresh slice owned by the callee.
func NewFramer(size int, emit func(block []int16)) *Framer {
	if size <= 0 {
		size = 160
	}
	return &Framer{size: size, buf: make([]int16, 0, size), emit: emit}
}

// Write appends samples, emitting every completed block.
func (f *Framer) Write(samples []int16) {
	for len(samples) > 0 {
		n := f.size - len(f.buf)
		if n > len(samples) {
			n = len(samples)
		}
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			block := make([]int16, f.size)
			copy(block, f.buf)
			f.buf = f.buf[:0]
			f.emit(block)
		}
	}
}

// Pending returns the number of buffered samples not yet emitted.
func (f *Framer) Pending() int { return len(f.buf) }

// Size returns the block size in samples.
func (f *Framer) Size() int { return f.size }
