package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// PGNGame is one game as it appears in a PGN export: tag pairs and the raw
// SAN movetext.
type PGNGame struct {
	Tags  map[string]string
	Moves string
}

var tagRegex = regexp.MustCompile(`^\[\s*([A-Za-z0-9_]+)\s+"((?:[^"\\]|\\.)*)"\s*\]\s*$`)

// Reader splits a PGN stream into games.
type Reader struct {
	sc      *bufio.Scanner
	pending string
}

// NewReader returns a reader over PGN text.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{sc: sc}
}

func (r *Reader) nextLine() (string, bool) {
	if r.pending != "" {
		l := r.pending
		r.pending = ""
		return l, true
	}
	if !r.sc.Scan() {
		return "", false
	}
	return strings.TrimRight(r.sc.Text(), "\r"), true
}

// Next returns the next game, or io.EOF when the stream is exhausted.
// A blank line ends the tag section and the movetext, except inside a
// {...} comment.
func (r *Reader) Next() (*PGNGame, error) {
	g := &PGNGame{Tags: make(map[string]string)}
	var moves []string
	inMoves := false
	tagsDone := false
	inComment := false

	for {
		line, ok := r.nextLine()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(line)

		if inComment {
			if trimmed != "" {
				moves = append(moves, trimmed)
			}
			inComment = openComment(trimmed, true)
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			if inMoves || tagsDone {
				// next game's tags
				r.pending = line
				break
			}
			// malformed tag pairs are dropped; missing identity tags reject the game later
			if m := tagRegex.FindStringSubmatch(trimmed); m != nil {
				g.Tags[m[1]] = unescape(m[2])
			}
			continue
		}
		if trimmed == "" {
			if inMoves {
				break
			}
			if len(g.Tags) > 0 {
				tagsDone = true
			}
			continue
		}
		if strings.HasPrefix(trimmed, "%") {
			continue
		}
		inMoves = true
		moves = append(moves, trimmed)
		inComment = openComment(trimmed, false)
	}

	if err := r.sc.Err(); err != nil {
		return nil, err
	}
	if len(g.Tags) == 0 && len(moves) == 0 {
		return nil, io.EOF
	}
	g.Moves = strings.Join(moves, " ")
	return g, nil
}

// openComment reports whether a {...} comment is still open at the end of
// line. PGN comments do not nest; a ';' outside braces comments out the
// rest of the line.
func openComment(line string, open bool) bool {
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case open && c == '}':
			open = false
		case !open && c == '{':
			open = true
		case !open && c == ';':
			return false
		}
	}
	return open
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		// Check for .pgn.zst
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

type zstdFile struct {
	f   *os.File
	dec *zstd.Decoder
}

func (z *zstdFile) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdFile) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// OpenPGN opens a .pgn or .pgn.zst file for reading.
func OpenPGN(path string) (io.ReadCloser, error) {
	if !isPGNFile(filepath.Base(path)) {
		return nil, fmt.Errorf("%s: not a .pgn or .pgn.zst file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) != ".zst" {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
	}
	return &zstdFile{f: f, dec: dec}, nil
}
