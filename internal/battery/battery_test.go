package battery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	readings []Reading
	errs     []error
	i        int
}

func (s *scriptedReader) Read() (Reading, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return Reading{}, s.errs[i]
	}
	return s.readings[i], nil
}

type recordingPublisher struct{ levels []uint8 }

func (p *recordingPublisher) SetBatteryLevel(v uint8) error {
	p.levels = append(p.levels, v)
	return nil
}

func TestReporterPublishesAndRetriesAfterFailure(t *testing.T) {
	reader := &scriptedReader{
		readings: []Reading{{Millivolts: 4000, Percent: 80}, {}, {Millivolts: 3900, Percent: 64, Charging: true}},
		errs:     []error{nil, errors.New("adc busy"), nil},
	}
	pub := &recordingPublisher{}
	r := NewReporter(reader, pub)

	_, ok := r.Last()
	assert.False(t, ok)

	r.Tick(context.Background())
	r.Tick(context.Background())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, uint8(80), last.Percent, "failed read keeps the previous value")
	assert.False(t, r.Charging())

	r.Tick(context.Background())
	assert.Equal(t, []uint8{80, 64}, pub.levels)
	assert.True(t, r.Charging())
}

func TestReporterWithoutPublisher(t *testing.T) {
	r := NewReporter(&scriptedReader{readings: []Reading{{Percent: 50}}}, nil)
	r.Tick(context.Background())
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, uint8(50), last.Percent)
}

func TestCurvePercent(t *testing.T) {
	tests := []struct {
		mv   uint16
		want uint8
	}{
		{4300, 100},
		{4200, 100},
		{4160, 99},
		{3860, 58},
		{3150, 1},
		{3000, 0},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LiPoCurve.Percent(tt.mv), "mv %d", tt.mv)
	}
	assert.Zero(t, Curve(nil).Percent(4000))
}

func TestCurveIsMonotonic(t *testing.T) {
	prev := uint8(0)
	for mv := uint16(0); mv <= 4300; mv += 5 {
		p := LiPoCurve.Percent(mv)
		require.GreaterOrEqual(t, p, prev, "mv %d", mv)
		prev = p
	}
}

func writeSysfs(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, v := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(v), 0o644))
	}
}

func TestSysfsReaderWithCapacity(t *testing.T) {
	dir := t.TempDir()
	writeSysfs(t, dir, map[string]string{
		"voltage_now": "3950000\n",
		"capacity":    "72\n",
		"status":      "Charging\n",
	})
	r, err := SysfsReader{Dir: dir}.Read()
	require.NoError(t, err)
	assert.Equal(t, Reading{Millivolts: 3950, Percent: 72, Charging: true}, r)
}

func TestSysfsReaderFallsBackToCurve(t *testing.T) {
	dir := t.TempDir()
	writeSysfs(t, dir, map[string]string{"voltage_now": "4200000"})
	r, err := SysfsReader{Dir: dir}.Read()
	require.NoError(t, err)
	assert.Equal(t, uint8(100), r.Percent)
	assert.False(t, r.Charging)
}

func TestSysfsReaderErrors(t *testing.T) {
	_, err := SysfsReader{Dir: t.TempDir()}.Read()
	assert.Error(t, err, "missing voltage_now")

	dir := t.TempDir()
	writeSysfs(t, dir, map[string]string{"voltage_now": "abc"})
	_, err = SysfsReader{Dir: dir}.Read()
	assert.Error(t, err)
}
