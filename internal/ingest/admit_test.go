package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dedup"
	"github.com/freeeve/chessarchive/internal/game"
)

func pgnGame(white, black, date, result string) string {
	return fmt.Sprintf("[Event \"Test\"]\n[White \"%s\"]\n[Black \"%s\"]\n[Result \"%s\"]\n[Date \"%s\"]\n[Round \"1\"]\n[WhiteElo \"2500\"]\n[BlackElo \"2400\"]\n\n1. e4 e5 2. Nf3 Nc6 %s\n\n",
		white, black, result, date, result)
}

func newAdmitter(t *testing.T, capacity int) (*Admitter, *chunk.Store, *dedup.Index) {
	t.Helper()
	store, err := chunk.Open(chunk.Config{Dir: t.TempDir(), Capacity: capacity, Logger: zerolog.Nop()})
	require.NoError(t, err)
	idx := dedup.New()
	return NewAdmitter(store, idx, 0, zerolog.Nop()), store, idx
}

func record(i int) *game.Record {
	r, _ := game.FromTags(map[string]string{
		"White":  fmt.Sprintf("Player %d", i),
		"Black":  "Opponent",
		"Result": "1-0",
		"Date":   "2023.01.01",
	}, "1. e4 e5", "test", "batch.pgn")
	return r
}

func chunkIDs(c *chunk.Chunk) []int {
	out := make([]int, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.Idx
	}
	return out
}

func TestAdmitRollsOverAtCapacity(t *testing.T) {
	a, store, _ := newAdmitter(t, chunk.DefaultCapacity)

	for i := 0; i < 4000; i++ {
		o, err := a.Admit(record(i))
		require.NoError(t, err)
		require.Equal(t, Admitted, o)
	}
	require.Len(t, store.Chunks(), 1)
	first := chunkIDs(store.Chunks()[0])
	assert.Equal(t, 0, first[0])
	assert.Equal(t, 3999, first[3999])

	o, err := a.Admit(record(4000))
	require.NoError(t, err)
	assert.Equal(t, Admitted, o)

	require.Len(t, store.Chunks(), 2)
	assert.Equal(t, []int{4000}, chunkIDs(store.Chunks()[1]))
	assert.Equal(t, first, chunkIDs(store.Chunks()[0]))
}

func TestAdmitDuplicateAcrossSources(t *testing.T) {
	a, store, idx := newAdmitter(t, 10)

	tags := map[string]string{"White": "Kasparov, G.", "Black": "Topalov, V.", "Result": "1-0", "Date": "1999.01.20", "Round": "4"}
	first, err := game.FromTags(tags, "1. e4 d6", "twic", "twic1.pgn")
	require.NoError(t, err)
	second, err := game.FromTags(tags, "1. e4 d6 2. d4", "pgnmentor", "Kasparov.pgn")
	require.NoError(t, err)

	o, err := a.Admit(first)
	require.NoError(t, err)
	assert.Equal(t, Admitted, o)

	o, err = a.Admit(second)
	require.NoError(t, err)
	assert.Equal(t, Duplicate, o)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, idx.Len())
	fp, err := game.FingerprintRecord(second)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, fp)
	assert.Empty(t, second.Hash, "duplicates are never assigned")
	assert.Equal(t, 1, store.NextID())
}

func TestAdmitRejectsAndFilters(t *testing.T) {
	store, err := chunk.Open(chunk.Config{Dir: t.TempDir(), Capacity: 10, Logger: zerolog.Nop()})
	require.NoError(t, err)
	a := NewAdmitter(store, dedup.New(), 2450, zerolog.Nop())

	batch := pgnGame("A", "B", "2020.01.01", "1-0") +
		"[White \"NoBlack\"]\n[Result \"1-0\"]\n[Date \"2020.01.01\"]\n\n1. e4 1-0\n\n" +
		pgnGame("A", "B", "2020.01.01", "1-0") +
		strings.Replace(pgnGame("C", "D", "2020.01.02", "0-1"), `[BlackElo "2400"]`, `[BlackElo "2460"]`, 1)

	sum, err := a.AdmitPGN(strings.NewReader(batch), "twic", "twic1.pgn")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Seen)
	assert.Equal(t, 1, sum.Admitted)
	assert.Equal(t, 2, sum.Filtered, "BlackElo 2400 is under the floor")
	assert.Equal(t, 1, sum.Rejected)
	assert.Zero(t, sum.Duplicates)

	rec := store.Chunks()[0].Records[0]
	assert.Equal(t, "C", rec.White)
	assert.Equal(t, "twic", rec.Source)
	assert.Equal(t, "twic1.pgn", rec.File)
	assert.Equal(t, "1. e4 e5 2. Nf3 Nc6 0-1", rec.Moves)
}

func TestAdmitCountsTagOnlyGame(t *testing.T) {
	a, store, _ := newAdmitter(t, 10)
	tagOnly := "[White \"A\"]\n[Black \"B\"]\n[Result \"1-0\"]\n[Date \"2020.01.01\"]\n[Site \"Linares\"]\n\n"
	batch := tagOnly + pgnGame("C", "D", "2020.01.02", "0-1")

	sum, err := a.AdmitPGN(strings.NewReader(batch), "twic", "twic2.pgn")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Seen)
	assert.Equal(t, 2, sum.Admitted)

	recs := store.Chunks()[0].Records
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].White)
	assert.Empty(t, recs[0].Moves)
	assert.Equal(t, "C", recs[1].White)
	assert.Empty(t, recs[1].Site)
}

func TestDedupTotalityAcrossBatches(t *testing.T) {
	a, store, idx := newAdmitter(t, 3)

	batches := []string{
		pgnGame("A", "B", "2020.01.01", "1-0") + pgnGame("C", "D", "2020.01.01", "0-1"),
		pgnGame("A", "B", "2020.01.01", "1-0") + pgnGame("E", "F", "2020.01.03", "1/2-1/2") + pgnGame("G", "H", "2020.01.04", "1-0"),
		pgnGame("C", "D", "2020.01.01", "0-1") + pgnGame("I", "J", "2020.01.05", "0-1"),
	}
	var total Summary
	for i, b := range batches {
		sum, err := a.AdmitPGN(strings.NewReader(b), "s", fmt.Sprintf("b%d.pgn", i))
		require.NoError(t, err)
		total.Add(sum)
	}
	assert.Equal(t, 5, total.Admitted)
	assert.Equal(t, 2, total.Duplicates)

	distinct := map[string]bool{}
	for _, c := range store.Chunks() {
		assert.LessOrEqual(t, c.Len(), 3)
		for _, r := range c.Records {
			distinct[r.Hash] = true
		}
	}
	assert.Equal(t, len(distinct), idx.Len())

	rebuilt, dupes := dedup.Rebuild(store.Chunks())
	assert.Zero(t, dupes)
	inc, err := idx.Encode()
	require.NoError(t, err)
	full, err := rebuilt.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(full), string(inc))
}
