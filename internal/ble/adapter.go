// Package ble exposes the pendant's GATT services to a paired phone: the
// audio stream, button events, the DFU control point, battery level and
// device information. The host stack is abstracted as a Peripheral so the
// server logic runs unchanged on BlueZ (tinygo), raw HCI (go-ble) and an
// in-process loopback.
package ble

import (
	"context"
	"errors"
)

// CharID identifies a characteristic of the pendant profile.
type CharID int

const (
	CharAudioData CharID = iota
	CharAudioCodec
	CharButton
	CharDFUControl
	CharBattery
	CharManufacturer
	CharModel
	CharFirmware
)

func (c CharID) String() string {
	switch c {
	case CharAudioData:
		return "audio_data"
	case CharAudioCodec:
		return "audio_codec"
	case CharButton:
		return "button"
	case CharDFUControl:
		return "dfu_control"
	case CharBattery:
		return "battery_level"
	case CharManufacturer:
		return "manufacturer"
	case CharModel:
		return "model"
	case CharFirmware:
		return "firmware"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned when notifying without a peer.
	ErrNotConnected = errors.New("ble: no peer connected")
	// ErrNotSubscribed is returned when the peer has not enabled
	// notifications on the characteristic.
	ErrNotSubscribed = errors.New("ble: peer not subscribed")
	// ErrUnknownCharacteristic is returned for a CharID missing from the profile.
	ErrUnknownCharacteristic = errors.New("ble: unknown characteristic")
)

// Handlers are the callbacks a Peripheral invokes from its host stack.
// Any of them may be nil.
type Handlers struct {
	// OnConnect reports a new peer and its initial notification payload
	// size in bytes, or 0 if the stack does not know it yet.
	OnConnect func(handle string, payloadSize int)
	// OnDisconnect reports that the peer went away.
	OnDisconnect func(handle string)
	// OnPayloadSize reports a renegotiated notification payload size.
	OnPayloadSize func(size int)
	// OnSubscribe reports a change of the peer's notification state.
	OnSubscribe func(c CharID, enabled bool)
	// OnWrite handles a write and returns the number of bytes accepted.
	OnWrite func(c CharID, data []byte) int
	// OnRead returns the current value of a readable characteristic.
	OnRead func(c CharID) []byte
}

// Advertisement describes what the peripheral broadcasts.
type Advertisement struct {
	LocalName    string
	ServiceUUIDs []string
	// ScanResponseUUIDs are sent in the scan response where the backend
	// supports one.
	ScanResponseUUIDs []string
}

// Peripheral abstracts a BLE host stack in the peripheral role.
type Peripheral interface {
	// Enable powers on the adapter.
	Enable() error
	// Register publishes the profile and installs the handlers.
	Register(p *Profile, h Handlers) error
	// Advertise broadcasts adv until ctx is cancelled or advertising fails.
	Advertise(ctx context.Context, adv Advertisement) error
	// Notify sends data on a notifying characteristic, or updates the
	// value of a read-only one.
	Notify(c CharID, data []byte) error
	// Close releases the stack.
	Close() error
}
