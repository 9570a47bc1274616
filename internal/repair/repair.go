// Package repair is the one-time migration that drops duplicate games and
// re-slices every chunk in fingerprint order. It breaks chunk stability on
// purpose and is never part of a routine rebuild.
package repair

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/game"
	"github.com/freeeve/chessarchive/internal/index"
	"github.com/freeeve/chessarchive/internal/syncer"
)

// ErrNotConfirmed is returned when the re-slice was not explicitly requested.
var ErrNotConfirmed = errors.New("re-slice needs explicit confirmation")

// Options configures a repair.
type Options struct {
	Layout    dataset.Layout
	Capacity  int
	Confirmed bool
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Result summarizes a repair.
type Result struct {
	Snapshot string // pre-repair backup directory
	Before   int    // records before
	After    int    // records after
	Dropped  int    // duplicates removed
	Chunks   int    // chunks after
	Removed  []int  // surplus chunk files deleted
	Indexes  []string
}

// Run snapshots the local artifacts, then drops duplicate fingerprints
// (keeping the lowest id), sorts by fingerprint, re-slices to capacity, and
// regenerates every index including id to chunk.
func Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if !opts.Confirmed {
		return res, ErrNotConfirmed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With().Str("component", "repair").Logger()
	dir := opts.Layout.ArtifactsDir()

	store, err := chunk.Open(chunk.Config{Dir: dir, Capacity: opts.Capacity, Logger: opts.Logger})
	if err != nil {
		return res, err
	}
	res.Before = store.Len()

	res.Snapshot, err = snapshotLocal(opts.Layout, opts.Now())
	if err != nil {
		return res, fmt.Errorf("pre-repair backup: %w", err)
	}
	log.Warn().Str("snapshot", res.Snapshot).Int("records", res.Before).Msg("re-slicing all chunks, chunk membership will change")
	if err := ctx.Err(); err != nil {
		return res, err
	}

	kept := dedupe(store.Chunks())
	res.Dropped = res.Before - len(kept)
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Hash != kept[j].Hash {
			return kept[i].Hash < kept[j].Hash
		}
		return kept[i].Idx < kept[j].Idx
	})

	capacity := store.Capacity()
	var chunks []*chunk.Chunk
	for start := 0; start < len(kept); start += capacity {
		end := min(start+capacity, len(kept))
		chunks = append(chunks, &chunk.Chunk{ID: len(chunks), Records: kept[start:end:end]})
	}

	store.Replace(chunks)
	if _, err := store.Flush(); err != nil {
		return res, err
	}
	if res.Removed, err = store.Prune(); err != nil {
		return res, err
	}
	if err := dataset.SaveMeta(opts.Layout, dataset.Meta{ChunkCapacity: capacity}); err != nil {
		return res, err
	}
	res.After = store.Len()
	res.Chunks = len(chunks)

	if res.Indexes, err = index.Build(store.Chunks()).Write(dir); err != nil {
		return res, err
	}

	log.Warn().
		Int("before", res.Before).
		Int("after", res.After).
		Int("dropped", res.Dropped).
		Int("chunks", res.Chunks).
		Ints("removed", res.Removed).
		Msg("repair complete, publish the new id to chunk index with the chunks")
	return res, nil
}

// dedupe keeps the lowest-id record of every fingerprint.
func dedupe(chunks []*chunk.Chunk) []*game.Record {
	best := make(map[string]*game.Record)
	var unkeyed []*game.Record
	for _, c := range chunks {
		for _, r := range c.Records {
			if r.Hash == "" {
				if fp, err := game.FingerprintRecord(r); err == nil {
					r.Hash = fp
				} else {
					unkeyed = append(unkeyed, r)
					continue
				}
			}
			if cur, ok := best[r.Hash]; !ok || r.Idx < cur.Idx {
				best[r.Hash] = r
			}
		}
	}
	out := make([]*game.Record, 0, len(best)+len(unkeyed))
	for _, r := range best {
		out = append(out, r)
	}
	return append(out, unkeyed...)
}

func snapshotLocal(layout dataset.Layout, at time.Time) (string, error) {
	names, err := dataset.ListArtifacts(layout.ArtifactsDir())
	if err != nil {
		return "", err
	}
	w, err := syncer.NewSnapshotWriter(layout, at, "-pre-repair")
	if err != nil {
		return "", err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(layout.ArtifactsDir(), name))
		if err != nil {
			return "", err
		}
		if err := w.Add(name, data); err != nil {
			return "", err
		}
	}
	snap, err := w.Close()
	if err != nil {
		return "", err
	}
	return snap.Dir, nil
}
