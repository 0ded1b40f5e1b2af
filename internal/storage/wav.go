// Package storage archives captured PCM to rotating WAV files.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// WAVArchive writes 16-bit PCM to WAV files in Dir, starting a new file
// every RotateEvery. It is safe for concurrent use.
type WAVArchive struct {
	dir         string
	sampleRate  int
	channels    int
	rotateEvery time.Duration
	now         func() time.Time

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	opened  time.Time
	buf     *audio.IntBuffer
	written []string
}

// NewWAVArchive creates dir if needed. A zero rotateEvery never rotates.
func NewWAVArchive(dir string, sampleRate, channels int, rotateEvery time.Duration) (*WAVArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	if channels <= 0 {
		channels = 1
	}
	return &WAVArchive{
		dir:         dir,
		sampleRate:  sampleRate,
		channels:    channels,
		rotateEvery: rotateEvery,
		now:         time.Now,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// WritePCM appends interleaved samples to the current file.
func (a *WAVArchive) WritePCM(samples []int16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.enc != nil && a.rotateEvery > 0 && now.Sub(a.opened) >= a.rotateEvery {
		if err := a.closeLocked(); err != nil {
			return err
		}
	}
	if a.enc == nil {
		if err := a.openLocked(now); err != nil {
			return err
		}
	}

	data := a.buf.Data[:0]
	for _, s := range samples {
		data = append(data, int(s))
	}
	a.buf.Data = data
	if err := a.enc.Write(a.buf); err != nil {
		return fmt.Errorf("storage: write %s: %w", a.file.Name(), err)
	}
	return nil
}

// Files returns the paths of the files opened so far, oldest first.
func (a *WAVArchive) Files() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.written...)
}

// Close finalizes the current file.
func (a *WAVArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *WAVArchive) openLocked(now time.Time) error {
	name := fmt.Sprintf("pendant-%s.wav", now.UTC().Format("20060102-150405.000"))
	path := filepath.Join(a.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	a.file = f
	a.enc = wav.NewEncoder(f, a.sampleRate, bitDepth, a.channels, 1)
	a.opened = now
	a.written = append(a.written, path)
	slog.Info("[STORAGE] recording", "file", path)
	return nil
}

func (a *WAVArchive) closeLocked() error {
	if a.enc == nil {
		return nil
	}
	err := a.enc.Close()
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	a.enc = nil
	a.file = nil
	if err != nil {
		return fmt.Errorf("storage: finalize wav: %w", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit WAV file.
func ReadWAV(path string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("storage: %s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("storage: decode %s: %w", path, err)
	}
	samples = make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return samples, int(dec.SampleRate), nil
}
