package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dedup"
	"github.com/freeeve/chessarchive/internal/source"
	"github.com/freeeve/chessarchive/internal/tracking"
)

type fakeFile struct {
	body     string
	etag     string
	probeErr error
	fetchErr error
}

type fakeFetcher struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	fetched []string
}

func (f *fakeFetcher) Probe(ctx context.Context, url string) (source.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[url]
	if !ok {
		return source.Meta{}, errors.New("no such file")
	}
	if file.probeErr != nil {
		return source.Meta{}, file.probeErr
	}
	return source.Meta{URL: url, ETag: file.etag, Modified: "Mon, 01 Jan 2024 00:00:00 GMT"}, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, dst io.Writer) (source.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	file := f.files[url]
	if file.fetchErr != nil {
		return source.Meta{}, file.fetchErr
	}
	n, err := io.WriteString(dst, file.body)
	return source.Meta{URL: url, ETag: file.etag, Size: int64(n)}, err
}

func newState(t *testing.T) *State {
	t.Helper()
	dir := t.TempDir()
	store, err := chunk.Open(chunk.Config{Dir: filepath.Join(dir, "artifacts"), Capacity: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return &State{
		Chunks:       store,
		Dedup:        dedup.New(),
		Tracking:     tracking.State{},
		DedupPath:    filepath.Join(dir, "artifacts", "index_hashes.json"),
		TrackingPath: filepath.Join(dir, "sources.json"),
	}
}

func TestFetch(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]*fakeFile{
		"https://a/1.pgn": {body: pgnGame("A", "B", "2020.01.01", "1-0") + pgnGame("C", "D", "2020.01.02", "0-1"), etag: "e1"},
		"https://a/2.pgn": {body: pgnGame("A", "B", "2020.01.01", "1-0") + pgnGame("E", "F", "2020.01.03", "1-0"), etag: "e2", probeErr: errors.New("timeout")},
		"https://a/3.pgn": {body: "", etag: "e3", fetchErr: errors.New("connection reset")},
		"https://a/4.pgn": {body: pgnGame("G", "H", "2020.01.04", "1-0"), etag: "e4"},
	}}
	st := newState(t)
	w := NewWorker(Config{
		Sources:         []Source{{Name: "a", Files: []string{"https://a/1.pgn", "https://a/2.pgn", "https://a/3.pgn", "https://a/4.pgn"}}},
		CheckpointEvery: 2,
		TempDir:         t.TempDir(),
		Logger:          zerolog.Nop(),
	}, fetcher, st)

	sum, err := w.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Files)
	assert.Equal(t, 1, sum.FetchFailures)
	assert.Equal(t, 4, sum.Admitted)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Len(t, fetcher.fetched, 4, "a failed probe is fetched anyway")

	// progress is on disk
	reopened, err := chunk.Open(chunk.Config{Dir: st.Chunks.Dir(), Capacity: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, 4, reopened.Len())
	saved, err := dedup.Load(st.DedupPath)
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Len())
	tr, err := tracking.Load(st.TrackingPath)
	require.NoError(t, err)
	assert.Contains(t, tr["a"].Files, "https://a/1.pgn")
	assert.NotContains(t, tr["a"].Files, "https://a/3.pgn")

	// second run only retries what is not tracked as current
	fetcher.fetched = nil
	sum, err = w.Fetch(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a/2.pgn", "https://a/3.pgn"}, fetcher.fetched)
	assert.Equal(t, 2, sum.Unchanged)
	assert.Zero(t, sum.Admitted)
	assert.Equal(t, 2, sum.Duplicates)
}

func TestFetchCancelledCheckpoints(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]*fakeFile{
		"u1": {body: pgnGame("A", "B", "2020.01.01", "1-0"), etag: "e1"},
	}}
	st := newState(t)
	w := NewWorker(Config{
		Sources: []Source{{Name: "a", Files: []string{"u1"}}},
		TempDir: t.TempDir(),
		Logger:  zerolog.Nop(),
	}, fetcher, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.fetched)
	_, err = os.Stat(st.TrackingPath)
	assert.NoError(t, err)
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.pgn")
	require.NoError(t, os.WriteFile(plain, []byte(pgnGame("A", "B", "2020.01.01", "1-0")), 0644))

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(pgnGame("C", "D", "2020.01.02", "1-0") + pgnGame("A", "B", "2020.01.01", "1-0")))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	compressed := filepath.Join(dir, "b.pgn.zst")
	require.NoError(t, os.WriteFile(compressed, buf.Bytes(), 0644))

	st := newState(t)
	w := NewWorker(Config{Logger: zerolog.Nop()}, nil, st)
	sum, err := w.ImportFiles(context.Background(), []string{plain, compressed, filepath.Join(dir, "missing.pgn")})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 1, sum.FileFailures)
	assert.Equal(t, 2, sum.Admitted)
	assert.Equal(t, 1, sum.Duplicates)

	rec := st.Chunks.Chunks()[0].Records[1]
	assert.Equal(t, LocalSource, rec.Source)
	assert.Equal(t, "b.pgn.zst", rec.File)
	assert.Equal(t, 1, rec.Idx)

	local := st.Tracking[LocalSource]
	require.NotNil(t, local)
	assert.Len(t, local.Files, 2)
	assert.Equal(t, 1, local.Files[compressed].Records)
}
