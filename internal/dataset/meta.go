package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCapacityMismatch is returned when the configured chunk capacity differs
// from the one the dataset was sliced with. Only repair may change it.
var ErrCapacityMismatch = errors.New("chunk capacity differs from the dataset's")

// Meta is the dataset-wide settings document in state/.
type Meta struct {
	ChunkCapacity int `json:"chunk_capacity"`
}

// MetaPath is the dataset settings document.
func (l Layout) MetaPath() string { return filepath.Join(l.StateDir(), "dataset.json") }

// LoadMeta reads the settings document. ok is false when it does not exist.
func LoadMeta(l Layout) (m Meta, ok bool, err error) {
	data, err := os.ReadFile(l.MetaPath())
	if errors.Is(err, os.ErrNotExist) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("read dataset meta: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, false, fmt.Errorf("parse %s: %w", l.MetaPath(), err)
	}
	return m, true, nil
}

// SaveMeta replaces the settings document.
func SaveMeta(l Layout, m Meta) error {
	if err := os.MkdirAll(l.StateDir(), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return WriteFile(l.MetaPath(), append(data, '\n'))
}

// CheckCapacity compares capacity with the recorded one. A dataset without a
// record adopts capacity.
func CheckCapacity(l Layout, capacity int) error {
	m, ok, err := LoadMeta(l)
	if err != nil {
		return err
	}
	if !ok || m.ChunkCapacity == 0 {
		return SaveMeta(l, Meta{ChunkCapacity: capacity})
	}
	if m.ChunkCapacity != capacity {
		return fmt.Errorf("%w: configured %d, dataset %d (re-slice with repair to change it)",
			ErrCapacityMismatch, capacity, m.ChunkCapacity)
	}
	return nil
}
