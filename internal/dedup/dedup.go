// Package dedup maps game fingerprints to the id they were admitted under.
// It is the authority on whether a game is already in the archive.
package dedup

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
)

var (
	// ErrCorrupt is returned when a persisted index cannot be parsed.
	ErrCorrupt = errors.New("corrupt dedup index")
	// ErrConflict is returned when a fingerprint is re-inserted with a different id.
	ErrConflict = errors.New("fingerprint already admitted under another id")
)

// Index is the fingerprint to id mapping.
type Index struct {
	mu    sync.RWMutex
	ids   map[string]int
	dirty bool
}

// New returns an empty index.
func New() *Index {
	return &Index{ids: make(map[string]int)}
}

// Contains reports whether fp has been admitted.
func (x *Index) Contains(fp string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.ids[fp]
	return ok
}

// Lookup returns the id fp was admitted under.
func (x *Index) Lookup(fp string) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.ids[fp]
	return id, ok
}

// Equal reports whether both indexes hold exactly the same mappings.
func (x *Index) Equal(o *Index) bool {
	if x == o {
		return true
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Equal(x.ids, o.ids)
}

// Insert records fp under id. Inserting the same pair twice is a no-op.
func (x *Index) Insert(fp string, id int) error {
	if fp == "" {
		return fmt.Errorf("insert: empty fingerprint")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.ids[fp]; ok {
		if existing == id {
			return nil
		}
		return fmt.Errorf("%w: %s has id %d, got %d", ErrConflict, fp, existing, id)
	}
	x.ids[fp] = id
	x.dirty = true
	return nil
}

// Len returns the number of fingerprints.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Dirty reports whether the index changed since it was loaded or saved.
func (x *Index) Dirty() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dirty
}

// Rebuild scans chunks in order and returns a fresh index plus the number of
// records whose fingerprint was already taken by an earlier record.
func Rebuild(chunks []*chunk.Chunk) (*Index, int) {
	x := New()
	dupes := 0
	for _, c := range chunks {
		for _, r := range c.Records {
			if _, ok := x.ids[r.Hash]; ok || r.Hash == "" {
				dupes++
				continue
			}
			x.ids[r.Hash] = r.Idx
		}
	}
	x.dirty = true
	return x, dupes
}

// Encode renders the index as a JSON object with sorted keys. Two indexes
// with the same entries always encode to the same bytes.
func (x *Index) Encode() ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	// encoding/json sorts map keys
	data, err := json.Marshal(x.ids)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses an encoded index.
func Decode(data []byte) (*Index, error) {
	ids := make(map[string]int)
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ids == nil {
		ids = make(map[string]int)
	}
	return &Index{ids: ids}, nil
}

// Load reads the index at path. A missing file is an empty index.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	x, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return x, nil
}

// Save writes the index to path if its encoding changed.
func (x *Index) Save(path string) error {
	data, err := x.Encode()
	if err != nil {
		return err
	}
	if _, err := dataset.WriteFileIfChanged(path, data); err != nil {
		return fmt.Errorf("save dedup index: %w", err)
	}
	x.mu.Lock()
	x.dirty = false
	x.mu.Unlock()
	return nil
}
