// Package ingest admits new games into the archive: it reads PGN batches,
// rejects malformed and duplicate games, and appends the rest to the open
// chunk.
package ingest

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dedup"
	"github.com/freeeve/chessarchive/internal/game"
)

// ErrUnreadable marks a batch file that could not be opened or parsed.
var ErrUnreadable = errors.New("unreadable pgn batch")

// Outcome is the fate of one candidate game.
type Outcome int

const (
	Admitted Outcome = iota
	Duplicate
	Rejected
	Filtered
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	case Filtered:
		return "filtered"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Summary aggregates the outcome of an admission run.
type Summary struct {
	Files         int // files admitted from
	Unchanged     int // files skipped because upstream did not change
	FetchFailures int // files that could not be probed or downloaded
	FileFailures  int // files that could not be read
	Seen          int
	Admitted      int
	Duplicates    int
	Rejected      int
	Filtered      int
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Files += o.Files
	s.Unchanged += o.Unchanged
	s.FetchFailures += o.FetchFailures
	s.FileFailures += o.FileFailures
	s.Seen += o.Seen
	s.Admitted += o.Admitted
	s.Duplicates += o.Duplicates
	s.Rejected += o.Rejected
	s.Filtered += o.Filtered
}

func (s *Summary) count(o Outcome) {
	s.Seen++
	switch o {
	case Admitted:
		s.Admitted++
	case Duplicate:
		s.Duplicates++
	case Rejected:
		s.Rejected++
	case Filtered:
		s.Filtered++
	}
}

// Log writes the summary as one structured line.
func (s Summary) Log(log zerolog.Logger, msg string) {
	log.Info().
		Int("files", s.Files).
		Int("unchanged", s.Unchanged).
		Int("fetch_failures", s.FetchFailures).
		Int("file_failures", s.FileFailures).
		Int("games", s.Seen).
		Int("admitted", s.Admitted).
		Int("duplicates", s.Duplicates).
		Int("rejected", s.Rejected).
		Int("filtered", s.Filtered).
		Msg(msg)
}

// Admitter places new games into the chunk store.
type Admitter struct {
	chunks    *chunk.Store
	dedup     *dedup.Index
	ratingMin int
	log       zerolog.Logger
}

// NewAdmitter returns an admitter. Games where either player is rated below
// ratingMin are filtered; zero disables the floor.
func NewAdmitter(chunks *chunk.Store, idx *dedup.Index, ratingMin int, logger zerolog.Logger) *Admitter {
	return &Admitter{
		chunks:    chunks,
		dedup:     idx,
		ratingMin: ratingMin,
		log:       logger.With().Str("component", "admit").Logger(),
	}
}

// Admit validates rec, checks it against the dedup index, and only then
// assigns the next id and appends it.
func (a *Admitter) Admit(rec *game.Record) (Outcome, error) {
	fp, err := game.FingerprintRecord(rec)
	if err != nil {
		return Rejected, nil
	}
	if a.ratingMin > 0 && (rec.WhiteElo < a.ratingMin || rec.BlackElo < a.ratingMin) {
		return Filtered, nil
	}
	if a.dedup.Contains(fp) {
		return Duplicate, nil
	}

	rec.Hash = fp
	rec.Idx = a.chunks.NextID()
	if _, _, err := a.chunks.Append(rec); err != nil {
		return Rejected, fmt.Errorf("append game %d: %w", rec.Idx, err)
	}
	if err := a.dedup.Insert(fp, rec.Idx); err != nil {
		return Rejected, err
	}
	return Admitted, nil
}

// AdmitPGN admits every game of a PGN stream. Per-game problems are counted;
// only store failures and unreadable input are returned.
func (a *Admitter) AdmitPGN(r io.Reader, source, file string) (Summary, error) {
	var s Summary
	pr := NewReader(r)
	for {
		pg, err := pr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("%w: %s: %v", ErrUnreadable, file, err)
		}

		rec, err := game.FromTags(pg.Tags, pg.Moves, source, file)
		if err != nil {
			s.count(Rejected)
			continue
		}
		o, err := a.Admit(rec)
		if err != nil {
			return s, err
		}
		s.count(o)
	}
	return s, nil
}
