package ble

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Service and characteristic UUIDs of the pendant profile.
const (
	AudioServiceUUID     = "19b10000-e8f2-537e-4f6c-d104768a1214"
	AudioDataUUID        = "19b10001-e8f2-537e-4f6c-d104768a1214"
	AudioCodecUUID       = "19b10002-e8f2-537e-4f6c-d104768a1214"
	ButtonServiceUUID    = "23ba7924-0000-1000-7450-346eac492e92"
	ButtonEventUUID      = "23ba7925-0000-1000-7450-346eac492e92"
	DFUServiceUUID       = "00001530-1212-efde-1523-785feabcd123"
	DFUControlUUID       = "00001531-1212-efde-1523-785feabcd123"
	BatteryServiceUUID   = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelUUID     = "00002a19-0000-1000-8000-00805f9b34fb"
	DeviceInfoUUID       = "0000180a-0000-1000-8000-00805f9b34fb"
	ManufacturerUUID     = "00002a29-0000-1000-8000-00805f9b34fb"
	ModelNumberUUID      = "00002a24-0000-1000-8000-00805f9b34fb"
	FirmwareRevisionUUID = "00002a26-0000-1000-8000-00805f9b34fb"
)

const sigBaseSuffix = "-0000-1000-8000-00805f9b34fb"

// Property flags of a characteristic.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropNotify
)

func (p Property) Has(q Property) bool { return p&q != 0 }

// CharSpec declares one characteristic.
type CharSpec struct {
	ID    CharID
	UUID  string
	Props Property
	// Value is the initial value of read-only characteristics.
	Value []byte
}

// DeviceInfo fills the device information service.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Firmware     string
}

// Profile is the ordered set of services the pendant registers.
type Profile struct {
	services *orderedmap.OrderedMap[string, []CharSpec]
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{services: orderedmap.New[string, []CharSpec]()}
}

// AddService appends a service. Adding an existing UUID replaces its
// characteristics and keeps its position.
func (p *Profile) AddService(uuid string, chars ...CharSpec) {
	p.services.Set(strings.ToLower(uuid), chars)
}

// Services calls fn for every service in registration order.
func (p *Profile) Services(fn func(uuid string, chars []CharSpec) error) error {
	for pair := p.services.Oldest(); pair != nil; pair = pair.Next() {
		if err := fn(pair.Key, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the declaration of characteristic id.
func (p *Profile) Lookup(id CharID) (CharSpec, bool) {
	for pair := p.services.Oldest(); pair != nil; pair = pair.Next() {
		for _, c := range pair.Value {
			if c.ID == id {
				return c, true
			}
		}
	}
	return CharSpec{}, false
}

// Len returns the number of services.
func (p *Profile) Len() int {
	return p.services.Len()
}

// PendantProfile builds the full pendant profile: audio, button, DFU,
// battery and device information, in that order.
func PendantProfile(codecID byte, info DeviceInfo) *Profile {
	p := NewProfile()
	p.AddService(AudioServiceUUID,
		CharSpec{ID: CharAudioData, UUID: AudioDataUUID, Props: PropRead | PropNotify},
		CharSpec{ID: CharAudioCodec, UUID: AudioCodecUUID, Props: PropRead, Value: []byte{codecID}},
	)
	p.AddService(ButtonServiceUUID,
		CharSpec{ID: CharButton, UUID: ButtonEventUUID, Props: PropRead | PropNotify},
	)
	p.AddService(DFUServiceUUID,
		CharSpec{ID: CharDFUControl, UUID: DFUControlUUID, Props: PropWrite | PropNotify},
	)
	p.AddService(BatteryServiceUUID,
		CharSpec{ID: CharBattery, UUID: BatteryLevelUUID, Props: PropRead | PropNotify, Value: []byte{0}},
	)
	p.AddService(DeviceInfoUUID,
		CharSpec{ID: CharManufacturer, UUID: ManufacturerUUID, Props: PropRead, Value: []byte(info.Manufacturer)},
		CharSpec{ID: CharModel, UUID: ModelNumberUUID, Props: PropRead, Value: []byte(info.Model)},
		CharSpec{ID: CharFirmware, UUID: FirmwareRevisionUUID, Props: PropRead, Value: []byte(info.Firmware)},
	)
	return p
}

// ShortUUID returns the 16-bit form ("180f") of a UUID on the Bluetooth
// base, or the UUID unchanged.
func ShortUUID(uuid string) string {
	u := strings.ToLower(uuid)
	if len(u) == 36 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// Validate checks that every UUID is in canonical 128-bit form and that
// no characteristic ID is declared twice.
func (p *Profile) Validate() error {
	seen := make(map[CharID]bool)
	return p.Services(func(svc string, chars []CharSpec) error {
		if err := validUUID(svc); err != nil {
			return err
		}
		for _, c := range chars {
			if err := validUUID(c.UUID); err != nil {
				return err
			}
			if seen[c.ID] {
				return fmt.Errorf("ble: characteristic %s declared twice", c.ID)
			}
			seen[c.ID] = true
		}
		return nil
	})
}

func validUUID(s string) error {
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return fmt.Errorf("ble: malformed uuid %q", s)
	}
	return nil
}
