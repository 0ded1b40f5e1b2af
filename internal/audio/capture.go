// Package audio captures microphone PCM, cuts it into fixed blocks and
// feeds the encoded frames to the stream ring buffer.
package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Capture reads signed 16-bit PCM from the default microphone.
type Capture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu      sync.Mutex
	running bool
	sink    func(samples []int16)
}

// NewCapture creates a capture context. Call Close() when done.
func NewCapture(sampleRate, channels uint32) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Start begins capturing. sink is called from the audio thread with each
// period of interleaved samples; the slice is reused after it returns.
func (c *Capture) Start(sink func(samples []int16)) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("audio: already capturing")
	}
	c.running = true
	c.sink = sink
	c.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.sampleRate

	var scratch []int16
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSample []byte, frameCount uint32) {
			scratch = bytesToInt16(scratch[:0], pSample, frameCount*c.channels)
			c.mu.Lock()
			fn := c.sink
			c.mu.Unlock()
			if fn != nil {
				fn(scratch)
			}
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		c.setStopped()
		return fmt.Errorf("audio: initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		c.setStopped()
		return fmt.Errorf("audio: starting capture device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()

	return nil
}

// Stop ends the capture. It is safe to call when not capturing.
func (c *Capture) Stop() {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.running = false
	c.sink = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
}

// IsRunning returns whether the device is capturing.
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SampleRate returns the configured sample rate in Hz.
func (c *Capture) SampleRate() uint32 { return c.sampleRate }

// Channels returns the configured channel count.
func (c *Capture) Channels() uint32 { return c.channels }

// Close releases all audio resources.
func (c *Capture) Close() error {
	c.Stop()

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		c.ctx.Free()
	}

	return nil
}

func (c *Capture) setStopped() {
	c.mu.Lock()
	c.running = false
	c.sink = nil
	c.mu.Unlock()
}

// bytesToInt16 appends sampleCount little-endian int16 samples from data
// to dst.
func bytesToInt16(dst []int16, data []byte, sampleCount uint32) []int16 {
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 2
		if offset+2 > uint32(len(data)) {
			break
		}
		dst = append(dst, int16(binary.LittleEndian.Uint16(data[offset:offset+2])))
	}
	return dst
}
