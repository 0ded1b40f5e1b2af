package gpio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupExportsAndConfigures(t *testing.T) {
	root := t.TempDir()
	p := Pin{Root: root, Number: 5}

	// Simulate the kernel creating the pin directory on export.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "gpio5"), 0o755))
	require.NoError(t, p.Setup())

	dir, err := os.ReadFile(filepath.Join(root, "gpio5", "direction"))
	require.NoError(t, err)
	assert.Equal(t, "in", string(dir))
	edge, err := os.ReadFile(filepath.Join(root, "gpio5", "edge"))
	require.NoError(t, err)
	assert.Equal(t, "both", string(edge))

	_, err = os.Stat(filepath.Join(root, "export"))
	assert.True(t, os.IsNotExist(err), "already exported pin must not be exported again")
}

func TestSetupWritesExport(t *testing.T) {
	root := t.TempDir()
	p := Pin{Root: root, Number: 7}
	// No gpio7 directory: export is written, then configuring fails since no kernel created it.
	err := p.Setup()
	require.Error(t, err)

	exp, rerr := os.ReadFile(filepath.Join(root, "export"))
	require.NoError(t, rerr)
	assert.Equal(t, "7", string(exp))
}

func TestPressedLevels(t *testing.T) {
	tests := []struct {
		raw       string
		activeLow bool
		want      bool
		wantErr   bool
	}{
		{"1\n", false, true, false},
		{"0\n", false, false, false},
		{"1\n", true, false, false},
		{"0", true, true, false},
		{"x", false, false, true},
	}
	for _, tt := range tests {
		got, err := Pin{ActiveLow: tt.activeLow}.pressed([]byte(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, "raw %q", tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "raw %q activeLow %v", tt.raw, tt.activeLow)
	}
}
