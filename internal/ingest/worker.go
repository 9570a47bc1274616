package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dedup"
	"github.com/freeeve/chessarchive/internal/source"
	"github.com/freeeve/chessarchive/internal/tracking"
)

// LocalSource is the source name of games imported from local files.
const LocalSource = "local"

// Fetcher probes and downloads upstream files.
type Fetcher interface {
	source.Prober
	Fetch(ctx context.Context, url string, dst io.Writer) (source.Meta, error)
}

// Source is one upstream archive and the files it publishes.
type Source struct {
	Name  string
	Files []string
}

// State is the mutable state an admission run works on. It is loaded by the
// caller and persisted at every checkpoint.
type State struct {
	Chunks       *chunk.Store
	Dedup        *dedup.Index
	Tracking     tracking.State
	DedupPath    string
	TrackingPath string
}

// Checkpoint flushes dirty chunks, then the dedup index, then tracking.
func (st *State) Checkpoint() error {
	if _, err := st.Chunks.Flush(); err != nil {
		return fmt.Errorf("checkpoint chunks: %w", err)
	}
	if err := st.Dedup.Save(st.DedupPath); err != nil {
		return fmt.Errorf("checkpoint dedup: %w", err)
	}
	if st.Tracking != nil && st.TrackingPath != "" {
		if err := st.Tracking.Save(st.TrackingPath); err != nil {
			return fmt.Errorf("checkpoint tracking: %w", err)
		}
	}
	return nil
}

// Config configures the admission worker.
type Config struct {
	Sources          []Source       // Upstream sources to fetch
	RatingMin        int            // Minimum rating filter, 0 disables
	Delay            time.Duration  // Minimum delay between fetches
	CheckpointEvery  int            // Persist progress every N files (default 5)
	ProbeConcurrency int            // Concurrent metadata probes (default 8)
	TempDir          string         // Where downloads are staged
	Logger           zerolog.Logger // Logger
}

// Worker fetches upstream files and admits their games.
type Worker struct {
	cfg      Config
	fetcher  Fetcher
	st       *State
	admitter *Admitter
	log      zerolog.Logger
	now      func() time.Time
}

// NewWorker creates a worker over st.
func NewWorker(cfg Config, fetcher Fetcher, st *State) *Worker {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 5
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 8
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if st.Tracking == nil {
		st.Tracking = tracking.State{}
	}
	log := cfg.Logger.With().Str("component", "ingest").Logger()
	return &Worker{
		cfg:      cfg,
		fetcher:  fetcher,
		st:       st,
		admitter: NewAdmitter(st.Chunks, st.Dedup, cfg.RatingMin, cfg.Logger),
		log:      log,
		now:      time.Now,
	}
}

// Fetch probes every source, downloads the files that changed, and admits
// their games. Failures of one file are logged and counted; the run goes on.
func (w *Worker) Fetch(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	defer func() {
		sum.Log(w.log, "fetch complete")
		w.log.Info().Dur("elapsed", time.Since(start)).Int("records", w.st.Chunks.Len()).Msg("archive size")
	}()

	done := 0
	for _, src := range w.cfg.Sources {
		results := source.ProbeAll(ctx, w.fetcher, src.Files, w.cfg.ProbeConcurrency)
		w.st.Tracking.Checked(src.Name, w.now())

		var changed []source.ProbeResult
		for _, r := range results {
			if r.Err != nil {
				w.log.Warn().Err(r.Err).Str("source", src.Name).Str("url", r.URL).Msg("probe failed, fetching anyway")
				changed = append(changed, r)
				continue
			}
			if w.st.Tracking.Changed(src.Name, r.URL, r.Modified, r.ETag) {
				changed = append(changed, r)
				continue
			}
			sum.Unchanged++
		}
		w.log.Info().
			Str("source", src.Name).
			Int("files", len(results)).
			Int("changed", len(changed)).
			Msg("probed source")

		for _, probe := range changed {
			if err := ctx.Err(); err != nil {
				return sum, w.finish(err)
			}
			if done > 0 && w.cfg.Delay > 0 {
				if err := sleep(ctx, w.cfg.Delay); err != nil {
					return sum, w.finish(err)
				}
			}

			fs, err := w.fetchOne(ctx, src.Name, probe)
			sum.Add(fs)
			if err != nil {
				return sum, w.finish(err)
			}
			done++
			if done%w.cfg.CheckpointEvery == 0 {
				if err := w.st.Checkpoint(); err != nil {
					return sum, err
				}
				w.log.Info().Int("files", done).Int("admitted", sum.Admitted).Msg("checkpoint")
			}
		}
	}
	return sum, w.finish(nil)
}

// finish persists progress and returns cause, or the checkpoint error.
func (w *Worker) finish(cause error) error {
	if err := w.st.Checkpoint(); err != nil {
		if cause != nil {
			return fmt.Errorf("%w (checkpoint also failed: %v)", cause, err)
		}
		return err
	}
	return cause
}

// fetchOne downloads and admits a single file. Download and read failures are
// counted in the summary; only store failures are returned.
func (w *Worker) fetchOne(ctx context.Context, name string, probe source.ProbeResult) (Summary, error) {
	var sum Summary
	log := w.log.With().Str("source", name).Str("url", probe.URL).Logger()

	tmp, err := os.CreateTemp(w.cfg.TempDir, "fetch-*"+downloadSuffix(probe.URL))
	if err != nil {
		return sum, fmt.Errorf("stage download: %w", err)
	}
	defer os.Remove(tmp.Name())

	meta, err := w.fetcher.Fetch(ctx, probe.URL, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		sum.FetchFailures++
		return sum, nil
	}
	if meta.Modified == "" {
		meta.Modified = probe.Modified
	}
	if meta.ETag == "" {
		meta.ETag = probe.ETag
	}

	fs, err := w.admitFile(tmp.Name(), name, path.Base(probe.URL))
	sum.Add(fs)
	if err != nil {
		if !errors.Is(err, ErrUnreadable) {
			return sum, err
		}
		log.Error().Err(err).Msg("read failed")
		sum.FileFailures++
		return sum, nil
	}
	w.st.Tracking.Fetched(name, probe.URL, meta.Modified, meta.ETag, fs.Admitted, w.now())
	return sum, nil
}

// ImportFiles admits local .pgn and .pgn.zst files under the local source.
func (w *Worker) ImportFiles(ctx context.Context, paths []string) (sum Summary, err error) {
	defer func() { sum.Log(w.log, "import complete") }()

	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return sum, w.finish(err)
		}
		fs, err := w.admitFile(p, LocalSource, filepath.Base(p))
		sum.Add(fs)
		if err != nil {
			if !errors.Is(err, ErrUnreadable) {
				return sum, w.finish(err)
			}
			w.log.Error().Err(err).Str("path", p).Msg("import failed")
			sum.FileFailures++
			continue
		}
		var modified string
		if fi, err := os.Stat(p); err == nil {
			modified = fi.ModTime().UTC().Format(http.TimeFormat)
		}
		w.st.Tracking.Fetched(LocalSource, p, modified, "", fs.Admitted, w.now())
		if (i+1)%w.cfg.CheckpointEvery == 0 {
			if err := w.st.Checkpoint(); err != nil {
				return sum, err
			}
		}
	}
	return sum, w.finish(nil)
}

func (w *Worker) admitFile(localPath, sourceName, file string) (Summary, error) {
	start := time.Now()
	rc, err := OpenPGN(localPath)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer rc.Close()

	sum, err := w.admitter.AdmitPGN(rc, sourceName, file)
	if err != nil {
		return sum, err
	}
	sum.Files = 1

	elapsed := time.Since(start)
	w.log.Info().
		Str("source", sourceName).
		Str("file", file).
		Int("games", sum.Seen).
		Int("admitted", sum.Admitted).
		Int("duplicates", sum.Duplicates).
		Int("rejected", sum.Rejected).
		Int("filtered", sum.Filtered).
		Float64("games_per_sec", float64(sum.Seen)/elapsed.Seconds()).
		Msg("file admitted")
	return sum, nil
}

func downloadSuffix(url string) string {
	if strings.HasSuffix(url, ".pgn.zst") {
		return ".pgn.zst"
	}
	return ".pgn"
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
