package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/repair"
)

const games = `[Event "Match"]
[White "Anand"]
[Black "Kramnik"]
[Result "1/2-1/2"]
[Date "2008.10.14"]

1. d4 d5 2. c4 c6 1/2-1/2

[Event "Match"]
[White "Kramnik"]
[Black "Anand"]
[Result "0-1"]
[Date "2008.10.15"]

1. d4 Nf6 2. c4 e6 0-1
`

// run executes one command line against an empty config file and returns
// its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "chessarchive.yaml")
	require.NoError(t, os.WriteFile(cfg, nil, 0644))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writePGN(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wch2008.pgn")
	require.NoError(t, os.WriteFile(path, []byte(games), 0644))
	return path
}

func TestImportAndStatus(t *testing.T) {
	data := t.TempDir()
	pgn := writePGN(t)

	_, err := run(t, "", "--data-dir", data, "import", "--pgn", pgn)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(data, "artifacts", "chunk_0.json"))
	require.NoError(t, err)

	// a second import admits nothing new
	_, err = run(t, "", "--data-dir", data, "import", pgn)
	require.NoError(t, err)

	out, err := run(t, "", "--data-dir", data, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "records   2 (next id 2)")
	assert.Contains(t, out, "source local")
	assert.NotContains(t, out, "duplicates")
}

func TestImportNeedsFiles(t *testing.T) {
	_, err := run(t, "", "--data-dir", t.TempDir(), "import")
	assert.Error(t, err)
}

func TestImportRespectsLock(t *testing.T) {
	data := t.TempDir()
	layout := dataset.NewLayout(data)
	require.NoError(t, layout.Ensure())
	lock, err := dataset.AcquireLock(layout)
	require.NoError(t, err)
	defer lock.Release()

	_, err = run(t, "", "--data-dir", data, "import", "--pgn", writePGN(t))
	assert.ErrorIs(t, err, dataset.ErrLocked)
}

func TestSyncPublishesToRemote(t *testing.T) {
	data := t.TempDir()
	remoteDir := t.TempDir()
	_, err := run(t, "", "--data-dir", data, "import", "--pgn", writePGN(t))
	require.NoError(t, err)

	out, err := run(t, "", "--data-dir", data, "--remote", "file://"+remoteDir, "sync", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "new")

	for _, name := range append([]string{"chunk_0.json"}, dataset.IndexNames...) {
		local, err := os.ReadFile(filepath.Join(data, "artifacts", name))
		require.NoError(t, err, name)
		published, err := os.ReadFile(filepath.Join(remoteDir, name))
		require.NoError(t, err, name)
		assert.Equal(t, local, published, name)
	}

	// nothing changed, so the next sync uploads nothing
	out, err = run(t, "", "--data-dir", data, "--remote", "file://"+remoteDir, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to upload")
}

func TestSyncDeclined(t *testing.T) {
	data := t.TempDir()
	remoteDir := t.TempDir()
	_, err := run(t, "", "--data-dir", data, "import", "--pgn", writePGN(t))
	require.NoError(t, err)

	_, err = run(t, "n\n", "--data-dir", data, "--remote", "file://"+remoteDir, "sync")
	require.NoError(t, err)
	entries, err := os.ReadDir(remoteDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSyncNeedsRemote(t *testing.T) {
	_, err := run(t, "", "--data-dir", t.TempDir(), "sync", "--yes")
	assert.ErrorContains(t, err, "no remote configured")
}

func TestRepairNeedsConfirmation(t *testing.T) {
	_, err := run(t, "", "--data-dir", t.TempDir(), "repair")
	assert.ErrorIs(t, err, repair.ErrNotConfirmed)
}
