// Package eco provides ECO (Encyclopedia of Chess Openings) lookup.
package eco

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"
)

var (
	// ErrEmptyMoves is returned for a game with no moves to replay.
	ErrEmptyMoves = errors.New("empty move sequence")
	// ErrNoMatch is returned when no position of the game has a name.
	ErrNoMatch = errors.New("no named opening position")
)

// Opening represents an ECO opening classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Match is the nearest named position of a game.
type Match struct {
	Key      string // hex of the packed position
	ECO      string
	Name     string
	Distance int // plies between the named position and the end of the game
}

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
	count      int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]Opening),
	}
}

// Open loads every .tsv file in dir.
func Open(dir string) (*Database, error) {
	db := NewDatabase()
	if err := db.LoadDir(dir); err != nil {
		return nil, err
	}
	return db, nil
}

var (
	// moveNumberRegex matches move numbers like "1." or "12..."
	moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)
	commentRegex    = regexp.MustCompile(`\{[^}]*\}|;[^\n]*`)
	variationRegex  = regexp.MustCompile(`\([^()]*\)`)
)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file of eco, name, pgn columns.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Skip header
		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		states, err := replay(parts[2])
		if err != nil || len(states) == 0 {
			// Skip invalid lines silently
			continue
		}

		db.byPosition[states[len(states)-1]] = Opening{ECO: parts[0], Name: parts[1]}
		db.count++
	}

	return scanner.Err()
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(pos pgn.PackedPosition) *Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}

// Nearest replays movetext from the starting position and returns the named
// position closest to the end of the game.
func (db *Database) Nearest(moves string) (Match, error) {
	states, err := replay(moves)
	if err != nil {
		return Match{}, err
	}
	if len(states) == 0 {
		return Match{}, ErrEmptyMoves
	}
	for i := len(states) - 1; i >= 0; i-- {
		if o, ok := db.byPosition[states[i]]; ok {
			return Match{
				Key:      hex.EncodeToString(states[i][:]),
				ECO:      o.ECO,
				Name:     o.Name,
				Distance: len(states) - 1 - i,
			}, nil
		}
	}
	return Match{}, ErrNoMatch
}

// replay applies SAN movetext like "1. e4 e5 2. Nf3 Nc6" to a fresh
// position and returns the packed position after each ply.
func replay(movetext string) ([]pgn.PackedPosition, error) {
	sans := sanTokens(movetext)
	if len(sans) == 0 {
		return nil, nil
	}

	pos := pgn.NewStartingPosition()
	states := make([]pgn.PackedPosition, 0, len(sans))
	for i, san := range sans {
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return nil, fmt.Errorf("ply %d: parse %q: %w", i+1, san, err)
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return nil, fmt.Errorf("ply %d: apply %q: %w", i+1, san, err)
		}
		states = append(states, pos.Pack())
	}
	return states, nil
}

func sanTokens(movetext string) []string {
	cleaned := commentRegex.ReplaceAllString(movetext, " ")
	for variationRegex.MatchString(cleaned) {
		cleaned = variationRegex.ReplaceAllString(cleaned, " ")
	}
	cleaned = moveNumberRegex.ReplaceAllString(cleaned, "")

	var out []string
	for _, tok := range strings.Fields(cleaned) {
		// Skip annotations and game termination markers
		if tok[0] == '$' {
			continue
		}
		switch tok {
		case "1-0", "0-1", "1/2-1/2", "*":
			continue
		}
		tok = strings.TrimRight(tok, "!?+#")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
