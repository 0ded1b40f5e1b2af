// Package battery periodically reads the battery and republishes its
// level on the standard battery service.
package battery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chaz8081/pendant/internal/metrics"
)

// Reading is one battery measurement.
type Reading struct {
	Millivolts uint16
	Percent    uint8
	Charging   bool
}

// Reader measures the battery.
type Reader interface {
	Read() (Reading, error)
}

// Publisher exposes the battery level to the peer.
type Publisher interface {
	SetBatteryLevel(percent uint8) error
}

// Reporter reads the battery on every tick and publishes the level. A
// failed read is logged and retried at the next tick.
type Reporter struct {
	reader Reader
	pub    Publisher

	mu   sync.RWMutex
	last Reading
	ok   bool
}

// NewReporter returns a Reporter.
func NewReporter(reader Reader, pub Publisher) *Reporter {
	return &Reporter{reader: reader, pub: pub}
}

// SetPublisher replaces the publisher.
func (r *Reporter) SetPublisher(pub Publisher) {
	r.mu.Lock()
	r.pub = pub
	r.mu.Unlock()
}

// Tick reads and publishes once. Its signature fits periodic.Task.Run.
func (r *Reporter) Tick(context.Context) {
	reading, err := r.reader.Read()
	if err != nil {
		metrics.BatteryReadErrors.Inc()
		slog.Error("[BATTERY] Failed to read battery level", "error", err)
		return
	}

	r.mu.Lock()
	r.last, r.ok = reading, true
	pub := r.pub
	r.mu.Unlock()

	metrics.BatteryPercent.Set(float64(reading.Percent))
	metrics.BatteryMillivolts.Set(float64(reading.Millivolts))
	slog.Info("[BATTERY] Level", "mv", reading.Millivolts, "percent", reading.Percent, "charging", reading.Charging)

	if pub == nil {
		return
	}
	if err := pub.SetBatteryLevel(reading.Percent); err != nil {
		slog.Error("[BATTERY] Error updating battery level", "error", err)
	}
}

// Last returns the most recent successful reading.
func (r *Reporter) Last() (Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.ok
}

// Charging reports whether the last reading saw the charger attached.
func (r *Reporter) Charging() bool {
	last, ok := r.Last()
	return ok && last.Charging
}
