package led

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/pendant/internal/session"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		recording, connected, charging bool
		want                           Color
	}{
		{true, true, false, Blue},
		{true, true, true, Blue},
		{true, false, false, Red},
		{true, false, true, Red},
		{false, false, true, White},
		{false, true, false, Off},
		{false, false, false, Off},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Select(tt.recording, tt.connected, tt.charging),
			"recording=%v connected=%v charging=%v", tt.recording, tt.connected, tt.charging)
	}
}

func TestColorString(t *testing.T) {
	assert.Equal(t, "white", White.String())
	assert.Equal(t, "off", Off.String())
	assert.Equal(t, "rgb(011)", (Red | Green).String())
}

func TestSysfsIndicator(t *testing.T) {
	dir := t.TempDir()
	ind := SysfsIndicator{
		Red:   filepath.Join(dir, "red"),
		Green: filepath.Join(dir, "green"),
		Blue:  filepath.Join(dir, "blue"),
	}
	require.NoError(t, ind.Set(Red|Blue))

	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "1", read("red"))
	assert.Equal(t, "0", read("green"))
	assert.Equal(t, "1", read("blue"))

	bad := SysfsIndicator{Red: filepath.Join(dir, "missing", "brightness")}
	assert.Error(t, bad.Set(Red))
}

type recordingIndicator struct {
	colors []Color
	err    error
}

func (r *recordingIndicator) Set(c Color) error {
	if r.err != nil {
		return r.err
	}
	r.colors = append(r.colors, c)
	return nil
}

func TestStatusAppliesChangesOnly(t *testing.T) {
	ind := &recordingIndicator{}
	sessions := session.NewManager()
	s := NewStatus(ind, sessions, nil, true)
	ctx := context.Background()

	s.Tick(ctx)
	s.Tick(ctx)
	sessions.OnEstablished(session.LinkInfo{Handle: "peer", PayloadSize: 185})
	s.Tick(ctx)
	s.Tick(ctx)
	sessions.OnTerminated("peer")
	s.Tick(ctx)

	assert.Equal(t, []Color{Red, Blue, Red}, ind.colors)
	assert.Equal(t, Red, s.Color())
}

func TestStatusCharging(t *testing.T) {
	ind := &recordingIndicator{}
	charging := true
	s := NewStatus(ind, session.NewManager(), func() bool { return charging }, false)

	s.Tick(context.Background())
	charging = false
	s.Tick(context.Background())

	assert.Equal(t, []Color{White, Off}, ind.colors)
}

func TestStatusRetriesAfterError(t *testing.T) {
	ind := &recordingIndicator{err: errors.New("busy")}
	s := NewStatus(ind, session.NewManager(), nil, true)

	s.Tick(context.Background())
	assert.Empty(t, ind.colors)

	ind.err = nil
	s.Tick(context.Background())
	assert.Equal(t, []Color{Red}, ind.colors)
}
