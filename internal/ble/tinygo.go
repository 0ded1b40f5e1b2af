package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoPeripheral runs the profile on tinygo-org/bluetooth: BlueZ over
// D-Bus on Linux, CoreBluetooth on macOS.
//
// The stack exposes neither CCCD writes nor MTU exchanges, so a connected
// peer is assumed subscribed to audio and button notifications and the
// payload size is the configured default. Values of read characteristics
// are pushed with Notify rather than served on demand.
type TinyGoPeripheral struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	chars    map[CharID]*bluetooth.Characteristic
	handlers Handlers
	peer     string
}

// NewTinyGoPeripheral returns a peripheral on the default adapter.
func NewTinyGoPeripheral() *TinyGoPeripheral {
	return &TinyGoPeripheral{
		adapter: bluetooth.DefaultAdapter,
		chars:   make(map[CharID]*bluetooth.Characteristic),
	}
}

func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		return err
	}

	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		p.onConnection(device.Address.String(), connected)
	})
	return nil
}

// onConnection reports a link change. A disconnect of a peer other than
// the tracked one belongs to a replaced link and is dropped.
func (p *TinyGoPeripheral) onConnection(addr string, connected bool) {
	p.mu.Lock()
	h := p.handlers
	stale := false
	switch {
	case connected:
		p.peer = addr
	case p.peer == addr:
		p.peer = ""
	default:
		stale = true
	}
	p.mu.Unlock()

	if !connected {
		if stale {
			slog.Debug("[BLE] replaced peer disconnected", "address", addr)
			return
		}
		if h.OnDisconnect != nil {
			h.OnDisconnect(addr)
		}
		return
	}
	if h.OnConnect != nil {
		h.OnConnect(addr, 0)
	}
	if h.OnSubscribe != nil {
		h.OnSubscribe(CharAudioData, true)
		h.OnSubscribe(CharButton, true)
	}
}

func (p *TinyGoPeripheral) Register(profile *Profile, h Handlers) error {
	p.mu.Lock()
	p.handlers = h
	p.mu.Unlock()

	return profile.Services(func(svcUUID string, specs []CharSpec) error {
		uuid, err := bluetooth.ParseUUID(svcUUID)
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		svc := &bluetooth.Service{UUID: uuid}
		for _, spec := range specs {
			cfg, err := p.characteristic(spec, h)
			if err != nil {
				return err
			}
			svc.Characteristics = append(svc.Characteristics, cfg)
		}
		if err := p.adapter.AddService(svc); err != nil {
			return fmt.Errorf("ble: add service %s: %w", svcUUID, err)
		}
		slog.Debug("[BLE] service added", "uuid", svcUUID, "characteristics", len(specs))
		return nil
	})
}

func (p *TinyGoPeripheral) characteristic(spec CharSpec, h Handlers) (bluetooth.CharacteristicConfig, error) {
	uuid, err := bluetooth.ParseUUID(spec.UUID)
	if err != nil {
		return bluetooth.CharacteristicConfig{}, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}
	handle := new(bluetooth.Characteristic)
	p.mu.Lock()
	p.chars[spec.ID] = handle
	p.mu.Unlock()

	var flags bluetooth.CharacteristicPermissions
	if spec.Props.Has(PropRead) {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if spec.Props.Has(PropNotify) {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	cfg := bluetooth.CharacteristicConfig{
		Handle: handle,
		UUID:   uuid,
		Value:  append([]byte(nil), spec.Value...),
		Flags:  flags,
	}
	if spec.Props.Has(PropWrite) {
		cfg.Flags |= bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission
		id := spec.ID
		cfg.WriteEvent = func(_ bluetooth.Connection, _ int, value []byte) {
			if h.OnWrite != nil {
				h.OnWrite(id, append([]byte(nil), value...))
			}
		}
	}
	return cfg, nil
}

// Advertise starts advertising and stops it when ctx is cancelled. The
// tinygo advertisement has no scan response, so ScanResponseUUIDs are not
// broadcast.
func (p *TinyGoPeripheral) Advertise(ctx context.Context, adv Advertisement) error {
	var uuids []bluetooth.UUID
	for _, s := range adv.ServiceUUIDs {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return fmt.Errorf("ble: parse advertised UUID: %w", err)
		}
		uuids = append(uuids, u)
	}
	if len(adv.ScanResponseUUIDs) > 0 {
		slog.Debug("[BLE] scan response not supported by backend", "uuids", adv.ScanResponseUUIDs)
	}

	a := p.adapter.DefaultAdvertisement()
	if err := a.Configure(bluetooth.AdvertisementOptions{
		LocalName:    adv.LocalName,
		ServiceUUIDs: uuids,
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	<-ctx.Done()
	if err := a.Stop(); err != nil {
		slog.Debug("[BLE] stop advertisement", "error", err)
	}
	return nil
}

// Notify writes data to the characteristic, which notifies subscribed
// centrals. Read-only characteristics just take the new value.
func (p *TinyGoPeripheral) Notify(c CharID, data []byte) error {
	p.mu.Lock()
	handle, ok := p.chars[c]
	peer := p.peer
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCharacteristic, c)
	}
	if _, err := handle.Write(data); err != nil {
		return fmt.Errorf("ble: notify %s: %w", c, err)
	}
	if peer == "" {
		return ErrNotConnected
	}
	return nil
}

// Close stops advertising. The adapter itself stays powered.
func (p *TinyGoPeripheral) Close() error {
	if err := p.adapter.DefaultAdvertisement().Stop(); err != nil {
		slog.Debug("[BLE] stop advertisement", "error", err)
	}
	return nil
}
