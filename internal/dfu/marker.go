package dfu

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileMarker stores the marker byte in a file.
type FileMarker struct {
	Path string
}

// Persist writes value atomically: a synced temp file renamed over Path.
func (m FileMarker) Persist(value byte) error {
	dir := filepath.Dir(m.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dfu: creating marker dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dfu-marker-*")
	if err != nil {
		return fmt.Errorf("dfu: creating marker: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte{value}); err != nil {
		tmp.Close()
		return fmt.Errorf("dfu: writing marker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("dfu: syncing marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dfu: closing marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.Path); err != nil {
		return fmt.Errorf("dfu: renaming marker: %w", err)
	}
	return nil
}

// Read returns the stored marker and whether one exists.
func (m FileMarker) Read() (byte, bool, error) {
	b, err := os.ReadFile(m.Path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("dfu: reading marker: %w", err)
	}
	if len(b) == 0 {
		return 0, false, nil
	}
	return b[0], true, nil
}

// Clear removes the marker.
func (m FileMarker) Clear() error {
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dfu: clearing marker: %w", err)
	}
	return nil
}
