// Package chunk stores admitted games in fixed-capacity, append-only
// partitions. Records never move between chunks once written.
package chunk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/game"
)

// DefaultCapacity is the number of records a chunk holds before rolling over.
const DefaultCapacity = 4000

// ErrCorrupt is returned when a chunk artifact cannot be read.
var ErrCorrupt = errors.New("corrupt chunk artifact")

// Chunk is an ordered partition of records.
type Chunk struct {
	ID      int
	Records []*game.Record
}

// Len returns the number of records in the chunk.
func (c *Chunk) Len() int { return len(c.Records) }

// Config configures a chunk store.
type Config struct {
	Dir      string         // Directory holding chunk_<n>.json artifacts
	Capacity int            // Records per chunk (default 4000)
	Logger   zerolog.Logger // Logger
}

// Store owns the chunks of one dataset. It is not safe for concurrent use.
type Store struct {
	cfg     Config
	log     zerolog.Logger
	chunks  []*Chunk
	dirty   map[int]bool
	records int
	nextIdx int
}

// Open loads every chunk in cfg.Dir. Chunk ids must be contiguous from 0.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("chunk dir is empty")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "chunk").Logger(),
		dirty: make(map[int]bool),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return err
	}
	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := dataset.ParseChunkName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	for i, id := range ids {
		if id != i {
			return fmt.Errorf("%w: chunk ids not contiguous, expected chunk_%d.json, found chunk_%d.json", ErrCorrupt, i, id)
		}
		data, err := os.ReadFile(filepath.Join(s.cfg.Dir, dataset.ChunkName(id)))
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", id, err)
		}
		c, err := Decode(id, data, s.log)
		if err != nil {
			return err
		}
		s.chunks = append(s.chunks, c)
		s.track(c.Records)
	}

	s.log.Debug().
		Int("chunks", len(s.chunks)).
		Int("records", s.records).
		Msg("loaded chunks")
	return nil
}

func (s *Store) track(records []*game.Record) {
	s.records += len(records)
	for _, r := range records {
		if r.Idx >= s.nextIdx {
			s.nextIdx = r.Idx + 1
		}
	}
}

// Capacity returns the configured chunk capacity.
func (s *Store) Capacity() int { return s.cfg.Capacity }

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.cfg.Dir }

// Chunks returns the chunks in id order. Callers may mutate record
// annotations and must then call MarkDirty.
func (s *Store) Chunks() []*Chunk { return s.chunks }

// Chunk returns the chunk with the given id.
func (s *Store) Chunk(id int) (*Chunk, bool) {
	if id < 0 || id >= len(s.chunks) {
		return nil, false
	}
	return s.chunks[id], true
}

// Len returns the total number of records.
func (s *Store) Len() int { return s.records }

// NextID returns the next unused record id.
func (s *Store) NextID() int { return s.nextIdx }

// Sealed reports whether chunk id is closed to appends. Only the last chunk
// can be open, and only while under capacity.
func (s *Store) Sealed(id int) bool {
	last := len(s.chunks) - 1
	if id < 0 || id > last {
		return false
	}
	return id < last || len(s.chunks[id].Records) >= s.cfg.Capacity
}

// Append places rec in the open chunk, or seals it and opens chunk last+1.
// It returns the chunk id and the position of rec within that chunk.
func (s *Store) Append(rec *game.Record) (int, int, error) {
	if rec == nil {
		return 0, 0, fmt.Errorf("append nil record")
	}
	if rec.Idx < s.nextIdx {
		return 0, 0, fmt.Errorf("append record %d: ids must increase, next is %d", rec.Idx, s.nextIdx)
	}

	n := len(s.chunks)
	if n == 0 || s.Sealed(n-1) {
		s.chunks = append(s.chunks, &Chunk{ID: n})
		if n > 0 {
			s.log.Debug().Int("sealed", n-1).Int("opened", n).Msg("chunk rollover")
		}
	}
	open := s.chunks[len(s.chunks)-1]
	open.Records = append(open.Records, rec)
	s.dirty[open.ID] = true
	s.track([]*game.Record{rec})
	return open.ID, len(open.Records) - 1, nil
}

// MarkDirty schedules chunk id for the next Flush.
func (s *Store) MarkDirty(id int) {
	if id >= 0 && id < len(s.chunks) {
		s.dirty[id] = true
	}
}

// Dirty returns the ids awaiting Flush, sorted.
func (s *Store) Dirty() []int {
	ids := make([]int, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Write persists chunk id with records. The file is replaced whole, so a
// reader sees either the old chunk or the new one.
func (s *Store) Write(id int, records []*game.Record) error {
	if id < 0 || id > len(s.chunks) {
		return fmt.Errorf("write chunk %d: only chunks 0..%d exist", id, len(s.chunks))
	}
	c := &Chunk{ID: id, Records: records}
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if err := dataset.WriteFile(filepath.Join(s.cfg.Dir, dataset.ChunkName(id)), data); err != nil {
		return fmt.Errorf("write chunk %d: %w", id, err)
	}

	if id == len(s.chunks) {
		s.chunks = append(s.chunks, c)
		s.track(records)
	} else {
		old := s.chunks[id]
		s.records -= len(old.Records)
		s.chunks[id] = c
		s.track(records)
	}
	delete(s.dirty, id)
	return nil
}

// Flush writes dirty chunks and returns their ids.
func (s *Store) Flush() ([]int, error) {
	ids := s.Dirty()
	for _, id := range ids {
		if err := s.Write(id, s.chunks[id].Records); err != nil {
			return nil, err
		}
	}
	if len(ids) > 0 {
		s.log.Debug().Ints("chunks", ids).Msg("flushed chunks")
	}
	return ids, nil
}

// Replace swaps the whole chunk set and marks every chunk dirty. Only the
// re-slice repair uses it; normal admission never moves records.
func (s *Store) Replace(chunks []*Chunk) {
	s.chunks = make([]*Chunk, len(chunks))
	s.dirty = make(map[int]bool, len(chunks))
	s.records = 0
	s.nextIdx = 0
	for i, c := range chunks {
		s.chunks[i] = &Chunk{ID: i, Records: c.Records}
		s.dirty[i] = true
		s.track(c.Records)
	}
}

// Prune removes chunk files whose id is beyond the current chunk set.
func (s *Store) Prune() ([]int, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var removed []int
	for _, e := range entries {
		id, ok := dataset.ParseChunkName(e.Name())
		if !ok || id < len(s.chunks) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove surplus chunk %d: %w", id, err)
		}
		removed = append(removed, id)
	}
	sort.Ints(removed)
	return removed, nil
}
