package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVArchiveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audio")
	a, err := NewWAVArchive(dir, 16000, 1, 0)
	require.NoError(t, err)

	require.NoError(t, a.WritePCM([]int16{0, 100, -100}))
	require.NoError(t, a.WritePCM([]int16{32767, -32768}))
	require.NoError(t, a.Close())

	files := a.Files()
	require.Len(t, files, 1)

	samples, rate, err := ReadWAV(files[0])
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, []int16{0, 100, -100, 32767, -32768}, samples)
}

func TestWAVArchiveRotates(t *testing.T) {
	a, err := NewWAVArchive(t.TempDir(), 8000, 1, time.Minute)
	require.NoError(t, err)

	clock := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	require.NoError(t, a.WritePCM([]int16{1}))
	clock = clock.Add(30 * time.Second)
	require.NoError(t, a.WritePCM([]int16{2}))
	clock = clock.Add(31 * time.Second)
	require.NoError(t, a.WritePCM([]int16{3}))
	require.NoError(t, a.Close())

	files := a.Files()
	require.Len(t, files, 2)

	first, _, err := ReadWAV(files[0])
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, first)

	second, _, err := ReadWAV(files[1])
	require.NoError(t, err)
	assert.Equal(t, []int16{3}, second)
}

func TestWAVArchiveCloseWithoutWrites(t *testing.T) {
	a, err := NewWAVArchive(t.TempDir(), 16000, 1, 0)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.Empty(t, a.Files())
}

func TestReadWAVMissing(t *testing.T) {
	_, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}
