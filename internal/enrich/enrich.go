// Package enrich annotates archived games with their nearest named opening.
package enrich

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/eco"
	"github.com/freeeve/chessarchive/internal/game"
)

// Lookuper finds the nearest named opening of a movetext.
type Lookuper interface {
	Nearest(moves string) (eco.Match, error)
}

// Summary counts per-record enrichment outcomes.
type Summary struct {
	Matched   int   // newly annotated
	Unmatched int   // replay failed, empty moves, or no named position
	Skipped   int   // already annotated, no lookup performed
	Lookups   int   // calls made to the lookup
	Changed   []int // chunk ids holding newly annotated records
}

// Engine annotates records in place.
type Engine struct {
	lookup Lookuper
	log    zerolog.Logger
}

// New returns an engine backed by lookup.
func New(lookup Lookuper, logger zerolog.Logger) *Engine {
	return &Engine{
		lookup: lookup,
		log:    logger.With().Str("component", "enrich").Logger(),
	}
}

// Run annotates every unannotated record of chunks. Records that already
// carry an annotation are skipped without a lookup.
func (e *Engine) Run(chunks []*chunk.Chunk) Summary {
	var s Summary
	for _, c := range chunks {
		changed := false
		for _, r := range c.Records {
			if r.Annotated() {
				s.Skipped++
				continue
			}
			s.Lookups++
			m, err := e.lookup.Nearest(r.Moves)
			if err != nil {
				s.Unmatched++
				if !errors.Is(err, eco.ErrNoMatch) && !errors.Is(err, eco.ErrEmptyMoves) {
					e.log.Debug().Err(err).Int("idx", r.Idx).Int("chunk", c.ID).Msg("move replay failed")
				}
				continue
			}
			r.Annotate(game.Annotation{Key: m.Key, Name: m.Name, ECO: m.ECO, Distance: m.Distance})
			s.Matched++
			changed = true
		}
		if changed {
			s.Changed = append(s.Changed, c.ID)
		}
	}

	e.log.Info().
		Int("matched", s.Matched).
		Int("unmatched", s.Unmatched).
		Int("skipped", s.Skipped).
		Int("lookups", s.Lookups).
		Int("chunks_changed", len(s.Changed)).
		Msg("enrichment complete")
	return s
}
