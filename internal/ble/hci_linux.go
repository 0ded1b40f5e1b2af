//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cornelk/hashmap"
	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// HCIPeripheral runs the profile directly on an HCI socket through
// go-ble. Unlike the BlueZ backend it sees CCCD writes and the negotiated
// ATT MTU, so subscriptions and payload size are exact.
type HCIPeripheral struct {
	id  int
	dev goble.Device

	handlers  Handlers
	notifiers *hashmap.Map[CharID, goble.Notifier]

	mu      sync.Mutex
	conn    goble.Conn
	payload int
	values  map[CharID][]byte
}

// NewHCIPeripheral returns a peripheral on hciN. The device is opened by
// Enable.
func NewHCIPeripheral(id int) *HCIPeripheral {
	return &HCIPeripheral{
		id:        id,
		notifiers: hashmap.New[CharID, goble.Notifier](),
		values:    make(map[CharID][]byte),
	}
}

func (p *HCIPeripheral) Enable() error {
	dev, err := linux.NewDevice(goble.OptDeviceID(p.id))
	if err != nil {
		return fmt.Errorf("ble: open hci%d: %w", p.id, err)
	}
	p.dev = dev
	goble.SetDefaultDevice(dev)
	return nil
}

func (p *HCIPeripheral) Register(profile *Profile, h Handlers) error {
	if p.dev == nil {
		return errors.New("ble: hci device not enabled")
	}
	p.handlers = h

	return profile.Services(func(svcUUID string, specs []CharSpec) error {
		u, err := goble.Parse(ShortUUID(svcUUID))
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		svc := goble.NewService(u)
		for _, spec := range specs {
			cu, err := goble.Parse(ShortUUID(spec.UUID))
			if err != nil {
				return fmt.Errorf("ble: parse characteristic UUID: %w", err)
			}
			p.mu.Lock()
			p.values[spec.ID] = append([]byte(nil), spec.Value...)
			p.mu.Unlock()
			p.bind(svc.NewCharacteristic(cu), spec)
		}
		if err := p.dev.AddService(svc); err != nil {
			return fmt.Errorf("ble: add service %s: %w", svcUUID, err)
		}
		slog.Debug("[BLE] service added", "uuid", svcUUID, "characteristics", len(specs))
		return nil
	})
}

func (p *HCIPeripheral) bind(c *goble.Characteristic, spec CharSpec) {
	id := spec.ID
	if spec.Props.Has(PropRead) {
		c.HandleRead(goble.ReadHandlerFunc(func(req goble.Request, rsp goble.ResponseWriter) {
			p.track(req.Conn())
			if _, err := rsp.Write(p.read(id)); err != nil {
				slog.Debug("[BLE] read response", "characteristic", id, "error", err)
			}
		}))
	}
	if spec.Props.Has(PropWrite) {
		c.HandleWrite(goble.WriteHandlerFunc(func(req goble.Request, rsp goble.ResponseWriter) {
			p.track(req.Conn())
			if p.handlers.OnWrite != nil {
				p.handlers.OnWrite(id, append([]byte(nil), req.Data()...))
			}
		}))
	}
	if spec.Props.Has(PropNotify) {
		c.HandleNotify(goble.NotifyHandlerFunc(func(req goble.Request, n goble.Notifier) {
			p.track(req.Conn())
			p.notifiers.Set(id, n)
			if p.handlers.OnSubscribe != nil {
				p.handlers.OnSubscribe(id, true)
			}
			slog.Debug("[BLE] notifications enabled", "characteristic", id, "cap", n.Cap())

			<-n.Context().Done()

			p.notifiers.Del(id)
			if p.handlers.OnSubscribe != nil {
				p.handlers.OnSubscribe(id, false)
			}
			slog.Debug("[BLE] notifications disabled", "characteristic", id)
		}))
	}
}

// track reports a connection the first time a request arrives on it and
// watches it for termination. Later calls on the same connection report
// payload size changes from an MTU exchange.
func (p *HCIPeripheral) track(conn goble.Conn) {
	if conn == nil {
		return
	}
	if p.refresh(conn) {
		return
	}
	payload := conn.TxMTU() - 3
	p.mu.Lock()
	if p.conn == conn {
		p.mu.Unlock()
		return
	}
	p.conn = conn
	p.payload = payload
	p.mu.Unlock()

	handle := conn.RemoteAddr().String()
	if p.handlers.OnConnect != nil {
		p.handlers.OnConnect(handle, payload)
	}
	go func() {
		<-conn.Disconnected()
		p.mu.Lock()
		current := p.conn == conn
		if current {
			p.conn = nil
			p.payload = 0
		}
		p.mu.Unlock()
		if !current {
			slog.Debug("[BLE] replaced connection closed", "handle", handle)
			return
		}
		if p.handlers.OnDisconnect != nil {
			p.handlers.OnDisconnect(handle)
		}
	}()
}

// refresh reports a payload size change if conn is the tracked
// connection. It returns false for any other connection.
func (p *HCIPeripheral) refresh(conn goble.Conn) bool {
	payload := conn.TxMTU() - 3
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return false
	}
	changed := payload != p.payload
	p.payload = payload
	p.mu.Unlock()
	if changed && p.handlers.OnPayloadSize != nil {
		p.handlers.OnPayloadSize(payload)
	}
	return true
}

func (p *HCIPeripheral) read(id CharID) []byte {
	if p.handlers.OnRead != nil {
		if v := p.handlers.OnRead(id); v != nil {
			return v
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[id]
}

// Advertise blocks in go-ble's advertiser until ctx is cancelled.
func (p *HCIPeripheral) Advertise(ctx context.Context, adv Advertisement) error {
	if p.dev == nil {
		return errors.New("ble: hci device not enabled")
	}
	var uuids []goble.UUID
	for _, s := range adv.ServiceUUIDs {
		u, err := goble.Parse(ShortUUID(s))
		if err != nil {
			return fmt.Errorf("ble: parse advertised UUID: %w", err)
		}
		uuids = append(uuids, u)
	}
	if len(adv.ScanResponseUUIDs) > 0 {
		slog.Debug("[BLE] scan response not supported by backend", "uuids", adv.ScanResponseUUIDs)
	}
	err := p.dev.AdvertiseNameAndServices(ctx, adv.LocalName, uuids...)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Notify sends data to the subscribed central. A characteristic nobody
// subscribed to only takes the new value.
func (p *HCIPeripheral) Notify(c CharID, data []byte) error {
	p.mu.Lock()
	p.values[c] = append(p.values[c][:0], data...)
	conn := p.conn
	p.mu.Unlock()
	connected := conn != nil
	if connected {
		p.refresh(conn)
	}

	n, ok := p.notifiers.Get(c)
	if !ok {
		if !connected {
			return ErrNotConnected
		}
		return ErrNotSubscribed
	}
	if _, err := n.Write(data); err != nil {
		return fmt.Errorf("ble: notify %s: %w", c, err)
	}
	return nil
}

func (p *HCIPeripheral) Close() error {
	if p.dev == nil {
		return nil
	}
	return p.dev.Stop()
}
