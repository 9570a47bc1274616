package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/freeeve/chessarchive/internal/dataset"
)

const (
	manifestName    = "manifest.json"
	snapshotSuffix  = ".zst"
	snapshotTimeFmt = "20060102T150405Z"
)

// Entry describes one object captured in a snapshot.
type Entry struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Snapshot is a point-in-time copy of a set of artifacts. Each object is
// stored zstd-compressed next to a manifest of its plain size and hash.
type Snapshot struct {
	Dir     string
	Entries []Entry
	byKey   map[string]Entry
}

// Names returns the captured keys, sorted.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Key
	}
	return out
}

// Entry returns the manifest entry of key.
func (s *Snapshot) Entry(key string) (Entry, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// Read returns the plain content of key, verified against the manifest.
func (s *Snapshot) Read(key string) ([]byte, error) {
	e, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%s not in snapshot %s", key, s.Dir)
	}
	f, err := os.Open(filepath.Join(s.Dir, key+snapshotSuffix))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	if hashOf(data) != e.SHA256 {
		return nil, fmt.Errorf("snapshot %s: %s does not match its manifest hash", s.Dir, key)
	}
	return data, nil
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newSnapshot(dir string, entries []Entry) *Snapshot {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	s := &Snapshot{Dir: dir, Entries: entries, byKey: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		s.byKey[e.Key] = e
	}
	return s
}

// OpenSnapshot loads the manifest of an existing snapshot directory.
func OpenSnapshot(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", dir, err)
	}
	return newSnapshot(dir, entries), nil
}

// SnapshotWriter fills a new snapshot directory.
type SnapshotWriter struct {
	dir     string
	enc     *zstd.Encoder
	entries []Entry
}

// NewSnapshotWriter creates backups/<UTC timestamp><suffix>/. An existing
// directory is never reused; a numeric suffix is added instead.
func NewSnapshotWriter(layout dataset.Layout, at time.Time, suffix string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(layout.BackupsDir(), 0755); err != nil {
		return nil, err
	}
	base := at.UTC().Format(snapshotTimeFmt) + suffix
	dir := filepath.Join(layout.BackupsDir(), base)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
		dir = filepath.Join(layout.BackupsDir(), fmt.Sprintf("%s-%d", base, i))
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{dir: dir, enc: enc}, nil
}

// Dir returns the snapshot directory.
func (w *SnapshotWriter) Dir() string { return w.dir }

// Add stores one object.
func (w *SnapshotWriter) Add(key string, data []byte) error {
	compressed := w.enc.EncodeAll(data, nil)
	if err := dataset.WriteFile(filepath.Join(w.dir, key+snapshotSuffix), compressed); err != nil {
		return fmt.Errorf("snapshot %s: %w", key, err)
	}
	w.entries = append(w.entries, Entry{Key: key, Size: int64(len(data)), SHA256: hashOf(data)})
	return nil
}

// Close writes the manifest and returns the finished snapshot.
func (w *SnapshotWriter) Close() (*Snapshot, error) {
	w.enc.Close()
	snap := newSnapshot(w.dir, w.entries)
	if snap.Entries == nil {
		snap.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(snap.Entries, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := dataset.WriteFile(filepath.Join(w.dir, manifestName), append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return snap, nil
}

// sameBytes reports whether data hashes to the manifest entry.
func (e Entry) sameBytes(data []byte) bool {
	return int64(len(data)) == e.Size && hashOf(data) == e.SHA256
}
