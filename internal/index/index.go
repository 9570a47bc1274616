// Package index derives the secondary lookup artifacts of the archive.
// Every index is a pure function of the chunk contents.
package index

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/dedup"
)

// Opening is one entry of the opening-name index. Key and ECO come from the
// first record encountered with that name.
type Opening struct {
	Key string `json:"key"`
	ECO string `json:"eco"`
	IDs []int  `json:"ids"`
}

type openingGroup struct {
	key string
	eco string
	ids *roaring.Bitmap
}

// Set holds every secondary index built from one record set.
type Set struct {
	players  map[string]*roaring.Bitmap
	eco      map[string]*roaring.Bitmap
	openings map[string]*openingGroup
	years    map[string]*roaring.Bitmap
	chunkOf  map[int]int
	maxID    int
	hashes   *dedup.Index
	dupes    int
}

// Build scans chunks in order and derives every index.
func Build(chunks []*chunk.Chunk) *Set {
	s := &Set{
		players:  make(map[string]*roaring.Bitmap),
		eco:      make(map[string]*roaring.Bitmap),
		openings: make(map[string]*openingGroup),
		years:    make(map[string]*roaring.Bitmap),
		chunkOf:  make(map[int]int),
		maxID:    -1,
	}

	for _, c := range chunks {
		for _, r := range c.Records {
			id := uint32(r.Idx)
			s.chunkOf[r.Idx] = c.ID
			if r.Idx > s.maxID {
				s.maxID = r.Idx
			}

			for _, name := range []string{r.White, r.Black} {
				if name = strings.TrimSpace(name); name != "" && name != "?" {
					add(s.players, name, id)
				}
			}
			if r.OpeningECO != "" {
				add(s.eco, r.OpeningECO, id)
			}
			if r.OpeningName != "" {
				g, ok := s.openings[r.OpeningName]
				if !ok {
					g = &openingGroup{key: r.OpeningKey, eco: r.OpeningECO, ids: roaring.New()}
					s.openings[r.OpeningName] = g
				}
				g.ids.Add(id)
			}
			if year, ok := r.Year(); ok {
				add(s.years, strconv.Itoa(year), id)
			}
		}
	}

	s.hashes, s.dupes = dedup.Rebuild(chunks)
	return s
}

func add(m map[string]*roaring.Bitmap, key string, id uint32) {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	bm.Add(id)
}

func ints(bm *roaring.Bitmap) []int {
	arr := bm.ToArray()
	out := make([]int, len(arr))
	for i, v := range arr {
		out[i] = int(v)
	}
	return out
}

func flatten(m map[string]*roaring.Bitmap) map[string][]int {
	out := make(map[string][]int, len(m))
	for k, bm := range m {
		out[k] = ints(bm)
	}
	return out
}

// Hashes returns the fingerprint index rebuilt from the chunks.
func (s *Set) Hashes() *dedup.Index { return s.hashes }

// Duplicates returns how many records repeat an earlier fingerprint.
func (s *Set) Duplicates() int { return s.dupes }

// Player returns the sorted ids of games played by name.
func (s *Set) Player(name string) []int {
	if bm, ok := s.players[name]; ok {
		return ints(bm)
	}
	return nil
}

// ChunkOf returns the chunk holding record id.
func (s *Set) ChunkOf(id int) (int, bool) {
	c, ok := s.chunkOf[id]
	return c, ok
}

// Counts returns the number of keys in each index, by artifact name.
func (s *Set) Counts() map[string]int {
	return map[string]int{
		dataset.PlayersIndex:  len(s.players),
		dataset.ECOIndex:      len(s.eco),
		dataset.OpeningsIndex: len(s.openings),
		dataset.YearsIndex:    len(s.years),
		dataset.ChunksIndex:   len(s.chunkOf),
		dataset.HashesIndex:   s.hashes.Len(),
	}
}

// dense reports whether record ids are exactly 0..N-1.
func (s *Set) dense() bool {
	return s.maxID == len(s.chunkOf)-1
}

func (s *Set) encodeChunks() ([]byte, error) {
	if s.dense() {
		arr := make([]int, len(s.chunkOf))
		for id, c := range s.chunkOf {
			arr[id] = c
		}
		return json.Marshal(arr)
	}
	sparse := make(map[string]int, len(s.chunkOf))
	for id, c := range s.chunkOf {
		sparse[strconv.Itoa(id)] = c
	}
	return json.Marshal(sparse)
}

func (s *Set) encodeOpenings() ([]byte, error) {
	out := make(map[string]Opening, len(s.openings))
	for name, g := range s.openings {
		out[name] = Opening{Key: g.key, ECO: g.eco, IDs: ints(g.ids)}
	}
	return json.Marshal(out)
}

// Artifacts encodes every index. Map keys are emitted sorted, so the same
// record set always yields the same bytes.
func (s *Set) Artifacts() (map[string][]byte, error) {
	out := make(map[string][]byte, len(dataset.IndexNames))
	encoders := map[string]func() ([]byte, error){
		dataset.PlayersIndex:  func() ([]byte, error) { return json.Marshal(flatten(s.players)) },
		dataset.ECOIndex:      func() ([]byte, error) { return json.Marshal(flatten(s.eco)) },
		dataset.OpeningsIndex: s.encodeOpenings,
		dataset.YearsIndex:    func() ([]byte, error) { return json.Marshal(flatten(s.years)) },
		dataset.ChunksIndex:   s.encodeChunks,
	}
	for name, enc := range encoders {
		data, err := enc()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = append(data, '\n')
	}
	hashes, err := s.hashes.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", dataset.HashesIndex, err)
	}
	out[dataset.HashesIndex] = hashes
	return out, nil
}

// Write stores every index in dir, skipping files whose bytes are already
// current. It returns the names that were written.
func (s *Set) Write(dir string) ([]string, error) {
	artifacts, err := s.Artifacts()
	if err != nil {
		return nil, err
	}
	var written []string
	for _, name := range dataset.IndexNames {
		changed, err := dataset.WriteFileIfChanged(filepath.Join(dir, name), artifacts[name])
		if err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		if changed {
			written = append(written, name)
		}
	}
	sort.Strings(written)
	return written, nil
}
