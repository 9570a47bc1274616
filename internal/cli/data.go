package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/dedup"
	"github.com/freeeve/chessarchive/internal/eco"
	"github.com/freeeve/chessarchive/internal/enrich"
	"github.com/freeeve/chessarchive/internal/ingest"
	"github.com/freeeve/chessarchive/internal/rebuild"
	"github.com/freeeve/chessarchive/internal/remote"
	"github.com/freeeve/chessarchive/internal/syncer"
	"github.com/freeeve/chessarchive/internal/tracking"
)

// openChunks opens the chunk store after checking the configured chunk_size
// against the one the dataset was sliced with.
func (a *app) openChunks() (*chunk.Store, error) {
	if err := dataset.CheckCapacity(a.layout, a.cfg.ChunkSize); err != nil {
		return nil, err
	}
	return chunk.Open(chunk.Config{
		Dir:      a.layout.ArtifactsDir(),
		Capacity: a.cfg.ChunkSize,
		Logger:   a.log,
	})
}

// openIngestState loads chunks, the dedup index, and tracking. A dedup index
// that disagrees with the chunks is replaced by one rebuilt from them.
func (a *app) openIngestState() (*ingest.State, error) {
	chunks, err := a.openChunks()
	if err != nil {
		return nil, err
	}
	hashesPath := a.layout.ArtifactPath(dataset.HashesIndex)
	idx, err := loadDedup(hashesPath, chunks.Chunks(), a.log)
	if err != nil {
		return nil, err
	}
	tr, err := tracking.Load(a.layout.TrackingPath())
	if err != nil {
		return nil, err
	}
	return &ingest.State{
		Chunks:       chunks,
		Dedup:        idx,
		Tracking:     tr,
		DedupPath:    hashesPath,
		TrackingPath: a.layout.TrackingPath(),
	}, nil
}

// loadDedup reads the stored dedup index and checks it against one rebuilt
// from chunks. On any difference the rebuilt index wins.
func loadDedup(path string, chunks []*chunk.Chunk, log zerolog.Logger) (*dedup.Index, error) {
	stored, err := dedup.Load(path)
	if err != nil {
		return nil, err
	}
	rebuilt, dupes := dedup.Rebuild(chunks)
	if stored.Equal(rebuilt) {
		return stored, nil
	}
	log.Warn().
		Int("stored", stored.Len()).
		Int("rebuilt", rebuilt.Len()).
		Int("duplicates", dupes).
		Msg("dedup index out of date, using index rebuilt from chunks")
	return rebuilt, nil
}

// openLookup loads the opening database. No eco_dir disables enrichment.
func (a *app) openLookup() (enrich.Lookuper, error) {
	if a.cfg.ECODir == "" {
		a.log.Warn().Msg("eco_dir not set, enrichment disabled")
		return nil, nil
	}
	db, err := eco.Open(a.cfg.ECODir)
	if err != nil {
		return nil, fmt.Errorf("load openings: %w", err)
	}
	a.log.Info().Int("openings", db.Count()).Str("dir", a.cfg.ECODir).Msg("loaded opening database")
	return db, nil
}

func (a *app) openRemote(ctx context.Context) (remote.Store, error) {
	if a.cfg.Remote == "" {
		return nil, fmt.Errorf("no remote configured, set remote in the config or pass --remote")
	}
	return remote.Open(ctx, remote.Options{
		URL:      a.cfg.Remote,
		Region:   a.cfg.RemoteRegion,
		Endpoint: a.cfg.RemoteEndpoint,
	})
}

func (a *app) newSession(store remote.Store, confirm syncer.Confirmer, allowReslice bool) *syncer.Session {
	return syncer.NewSession(syncer.Config{
		Remote:       store,
		Layout:       a.layout,
		Confirm:      confirm,
		MaxRetries:   a.cfg.Fetch.MaxRetries,
		Logger:       a.log,
		AllowReslice: allowReslice,
	})
}

// rebuildFunc returns the rebuild step of a sync session.
func (a *app) rebuildFunc(lookup enrich.Lookuper) syncer.RebuildFunc {
	return func(ctx context.Context, snap *syncer.Snapshot) error {
		opts := rebuild.Options{
			Layout:   a.layout,
			Capacity: a.cfg.ChunkSize,
			Lookup:   lookup,
			Logger:   a.log,
		}
		if snap != nil {
			opts.Snapshot = snap
		}
		_, err := rebuild.Run(ctx, opts)
		return err
	}
}
