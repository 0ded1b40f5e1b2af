package battery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsReader reads a Linux power_supply device.
type SysfsReader struct {
	// Dir is the device directory, e.g. /sys/class/power_supply/battery.
	Dir string
	// Curve converts voltage to percent when the driver reports no
	// capacity. Defaults to LiPoCurve.
	Curve Curve
}

// Read implements Reader.
func (s SysfsReader) Read() (Reading, error) {
	uv, err := s.readInt("voltage_now")
	if err != nil {
		return Reading{}, err
	}
	mv := uint16(min(max(uv/1000, 0), 0xFFFF))
	r := Reading{Millivolts: mv}

	capacity, err := s.readInt("capacity")
	switch {
	case err == nil:
		r.Percent = uint8(min(max(capacity, 0), 100))
	case errors.Is(err, os.ErrNotExist):
		curve := s.Curve
		if curve == nil {
			curve = LiPoCurve
		}
		r.Percent = curve.Percent(mv)
	default:
		return Reading{}, err
	}

	if status, err := os.ReadFile(filepath.Join(s.Dir, "status")); err == nil {
		r.Charging = strings.TrimSpace(string(status)) == "Charging"
	}
	return r, nil
}

func (s SysfsReader) readInt(name string) (int64, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return 0, fmt.Errorf("battery: reading %s: %w", name, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("battery: parsing %s: %w", name, err)
	}
	return v, nil
}
