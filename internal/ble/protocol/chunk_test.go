// internal/ble/protocol/chunk_test.go
package protocol

import (
	"bytes"
	"testing"
)

func frameOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestFragmentCount(t *testing.T) {
	tests := []struct {
		frameLen, payload, want int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{97, 100, 1},
		{98, 100, 2},
		{320, 100, 4},
		{320, 247, 2},
		{320, 3, 0},
		{320, 2, 0},
	}
	for _, tt := range tests {
		if got := FragmentCount(tt.frameLen, tt.payload); got != tt.want {
			t.Errorf("FragmentCount(%d, %d) = %d, want %d", tt.frameLen, tt.payload, got, tt.want)
		}
	}
}

func TestSplitFitsInOne(t *testing.T) {
	var f Fragmenter
	frame := []byte("hello")
	var got [][]byte
	n := f.Split(frame, 20, func(b []byte) { got = append(got, bytes.Clone(b)) })
	if n != 1 || len(got) != 1 {
		t.Fatalf("Split() emitted %d fragments, want 1", len(got))
	}
	want := []byte{0x00, 0x00, 0x00, 'h', 'e', 'l', 'l', 'o'}
	if !bytes.Equal(got[0], want) {
		t.Errorf("fragment = %x, want %x", got[0], want)
	}
}

func TestSplitEmpty(t *testing.T) {
	var f Fragmenter
	n := f.Split(nil, 100, func([]byte) { t.Error("emit called for empty frame") })
	if n != 0 {
		t.Errorf("Split(nil) = %d, want 0", n)
	}
	if f.NextID() != 0 {
		t.Errorf("NextID() = %d, want 0 after empty frame", f.NextID())
	}
}

func TestSplitReconstructsFrame(t *testing.T) {
	for _, payload := range []int{5, 23, 100, 185, 247, 512} {
		for _, frameLen := range []int{1, 96, 97, 98, 160, 320} {
			var f Fragmenter
			frame := frameOf(frameLen)
			var reassembled []byte
			wantIndex := 0
			n := f.Split(frame, payload, func(b []byte) {
				if len(b) > payload {
					t.Errorf("P=%d L=%d: fragment len %d exceeds payload", payload, frameLen, len(b))
				}
				frag, err := ParseFragment(b)
				if err != nil {
					t.Fatalf("ParseFragment() error = %v", err)
				}
				if int(frag.Index) != wantIndex {
					t.Errorf("P=%d L=%d: index = %d, want %d", payload, frameLen, frag.Index, wantIndex)
				}
				if int(frag.ID) != wantIndex {
					t.Errorf("P=%d L=%d: id = %d, want %d", payload, frameLen, frag.ID, wantIndex)
				}
				wantIndex++
				reassembled = append(reassembled, frag.Payload...)
			})
			if want := FragmentCount(frameLen, payload); n != want {
				t.Errorf("P=%d L=%d: Split() = %d, want %d", payload, frameLen, n, want)
			}
			if !bytes.Equal(reassembled, frame) {
				t.Errorf("P=%d L=%d: reassembled frame differs", payload, frameLen)
			}
		}
	}
}

func TestSplitIDSharedAcrossFrames(t *testing.T) {
	var f Fragmenter
	var ids []uint16
	var indices []uint8
	emit := func(b []byte) {
		frag, _ := ParseFragment(b)
		ids = append(ids, frag.ID)
		indices = append(indices, frag.Index)
	}
	f.Split(frameOf(10), 8, emit) // 2 fragments
	f.Split(frameOf(12), 8, emit) // 3 fragments

	wantIDs := []uint16{0, 1, 2, 3, 4}
	wantIdx := []uint8{0, 1, 0, 1, 2}
	for i := range wantIDs {
		if ids[i] != wantIDs[i] || indices[i] != wantIdx[i] {
			t.Errorf("fragment %d = (id %d, index %d), want (%d, %d)", i, ids[i], indices[i], wantIDs[i], wantIdx[i])
		}
	}
}

func TestSplitIDWraps(t *testing.T) {
	f := Fragmenter{nextID: 0xFFFF}
	var ids []uint16
	f.Split(frameOf(6), 6, func(b []byte) {
		frag, _ := ParseFragment(b)
		ids = append(ids, frag.ID)
	})
	if len(ids) != 2 || ids[0] != 0xFFFF || ids[1] != 0 {
		t.Errorf("ids = %v, want [65535 0]", ids)
	}
}

func TestSplitPayloadTooSmall(t *testing.T) {
	var f Fragmenter
	n := f.Split(frameOf(10), FragmentHeaderSize, func([]byte) { t.Error("emit called with no room for data") })
	if n != 0 {
		t.Errorf("Split() = %d, want 0", n)
	}
}

func TestSplitStopsAtIndexLimit(t *testing.T) {
	var f Fragmenter
	n := f.Split(frameOf(300), 4, func([]byte) {})
	if n != 256 {
		t.Errorf("Split() = %d, want 256", n)
	}
}
