// Package rebuild regenerates derived artifacts from the chunk store:
// opening annotations, the dedup index, and the secondary indexes.
package rebuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/enrich"
	"github.com/freeeve/chessarchive/internal/index"
)

// Snapshot is a read-only copy of the remote artifacts.
type Snapshot interface {
	Names() []string
	Read(name string) ([]byte, error)
}

// Options configures a rebuild.
type Options struct {
	Layout   dataset.Layout
	Capacity int
	Lookup   enrich.Lookuper // nil skips enrichment
	Snapshot Snapshot        // nil skips copy-forward
	Logger   zerolog.Logger
}

// Result summarizes a rebuild.
type Result struct {
	CopiedForward []int // chunk ids restored from the snapshot
	Enrich        enrich.Summary
	Flushed       []int    // chunk ids rewritten
	Indexes       []string // index artifacts rewritten
	Chunks        int
	Records       int
	Duplicates    int // records sharing a fingerprint with an earlier one
}

// Run rebuilds every derived artifact. Chunk files that are current and index
// files whose bytes did not change are left untouched.
func Run(ctx context.Context, opts Options) (res Result, err error) {
	log := opts.Logger.With().Str("component", "rebuild").Logger()
	start := time.Now()
	defer func() {
		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Ints("copied_forward", res.CopiedForward).
			Int("matched", res.Enrich.Matched).
			Int("unmatched", res.Enrich.Unmatched).
			Int("skipped", res.Enrich.Skipped).
			Ints("chunks_written", res.Flushed).
			Strs("indexes_written", res.Indexes).
			Int("records", res.Records).
			Dur("elapsed", time.Since(start)).
			Msg("rebuild finished")
	}()

	dir := opts.Layout.ArtifactsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, err
	}
	if opts.Capacity <= 0 {
		opts.Capacity = chunk.DefaultCapacity
	}
	if err := dataset.CheckCapacity(opts.Layout, opts.Capacity); err != nil {
		return res, err
	}

	if opts.Snapshot != nil {
		res.CopiedForward, err = copyForward(dir, opts.Snapshot)
		if err != nil {
			return res, err
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	store, err := chunk.Open(chunk.Config{Dir: dir, Capacity: opts.Capacity, Logger: opts.Logger})
	if err != nil {
		return res, err
	}
	res.Chunks = len(store.Chunks())
	res.Records = store.Len()

	if opts.Lookup != nil {
		res.Enrich = enrich.New(opts.Lookup, opts.Logger).Run(store.Chunks())
		for _, id := range res.Enrich.Changed {
			store.MarkDirty(id)
		}
	} else {
		log.Warn().Msg("no opening database, skipping enrichment")
	}
	if res.Flushed, err = store.Flush(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	set := index.Build(store.Chunks())
	res.Duplicates = set.Duplicates()
	if res.Duplicates > 0 {
		log.Warn().Int("duplicates", res.Duplicates).Msg("chunks contain repeated fingerprints, run repair to drop them")
	}
	if res.Indexes, err = set.Write(dir); err != nil {
		return res, err
	}
	return res, nil
}

// copyForward restores chunk artifacts present in the snapshot but missing
// locally. Local chunks always win.
func copyForward(dir string, snap Snapshot) ([]int, error) {
	var copied []int
	for _, name := range snap.Names() {
		id, ok := dataset.ParseChunkName(name)
		if !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return copied, err
		}
		data, err := snap.Read(name)
		if err != nil {
			return copied, fmt.Errorf("copy forward %s: %w", name, err)
		}
		if err := dataset.WriteFile(path, data); err != nil {
			return copied, err
		}
		copied = append(copied, id)
	}
	return copied, nil
}
