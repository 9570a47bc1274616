// Package dataset describes the on-disk layout of a game archive: published
// artifacts, local state, and point-in-time backups of the remote store.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the directories of a dataset rooted at Root.
//
//	<root>/artifacts/   chunk and index artifacts (what gets published)
//	<root>/state/       source tracking and the writer lock
//	<root>/backups/     timestamped snapshots of the remote store
type Layout struct {
	Root string
}

// NewLayout returns the layout for root.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) ArtifactsDir() string { return filepath.Join(l.Root, "artifacts") }
func (l Layout) StateDir() string     { return filepath.Join(l.Root, "state") }
func (l Layout) BackupsDir() string   { return filepath.Join(l.Root, "backups") }

// TrackingPath is the source tracking document.
func (l Layout) TrackingPath() string { return filepath.Join(l.StateDir(), "sources.json") }

// LockPath is the single-writer lock file.
func (l Layout) LockPath() string { return filepath.Join(l.StateDir(), ".lock") }

// ArtifactPath returns the local path of a named artifact.
func (l Layout) ArtifactPath(name string) string { return filepath.Join(l.ArtifactsDir(), name) }

// Ensure creates the layout directories.
func (l Layout) Ensure() error {
	if l.Root == "" {
		return fmt.Errorf("dataset root is empty")
	}
	for _, dir := range []string{l.ArtifactsDir(), l.StateDir(), l.BackupsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
