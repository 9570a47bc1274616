// Package game defines the archived game record and its content fingerprint.
package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingField is returned when a game lacks an identity field.
var ErrMissingField = errors.New("missing identity field")

// Record is one admitted game. Idx and Hash are fixed at admission; the
// Opening* annotation group is the only part rewritten afterwards.
type Record struct {
	Idx    int    `json:"idx"`
	Hash   string `json:"hash"`
	Source string `json:"source"`
	File   string `json:"file"`

	White       string `json:"white"`
	Black       string `json:"black"`
	WhiteElo    int    `json:"white_elo,omitempty"`
	BlackElo    int    `json:"black_elo,omitempty"`
	Result      string `json:"result"`
	Date        string `json:"date"`
	Round       string `json:"round"`
	Event       string `json:"event"`
	Site        string `json:"site"`
	ECO         string `json:"eco"`
	Opening     string `json:"opening"`
	TimeControl string `json:"time_control"`
	Moves       string `json:"moves"`

	OpeningKey      string `json:"opening_key,omitempty"`
	OpeningName     string `json:"opening_name,omitempty"`
	OpeningECO      string `json:"opening_eco,omitempty"`
	OpeningDistance int    `json:"opening_distance,omitempty"`
}

// Annotated reports whether the record already carries an opening annotation.
func (r *Record) Annotated() bool {
	return r.OpeningKey != ""
}

// Annotation is the derived opening group of a record.
type Annotation struct {
	Key      string
	Name     string
	ECO      string
	Distance int
}

// Annotate writes a into the record.
func (r *Record) Annotate(a Annotation) {
	r.OpeningKey = a.Key
	r.OpeningName = a.Name
	r.OpeningECO = a.ECO
	r.OpeningDistance = a.Distance
}

// SameGame reports whether r and o are the same admitted record, ignoring
// the annotation group.
func (r *Record) SameGame(o *Record) bool {
	a, b := *r, *o
	a.Annotate(Annotation{})
	b.Annotate(Annotation{})
	return a == b
}

// Year returns the four-digit year of the record's date.
func (r *Record) Year() (int, bool) {
	if len(r.Date) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(r.Date[:4])
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// FromTags builds an unadmitted record from PGN tag pairs and movetext.
// Idx and Hash are left for admission to assign.
func FromTags(tags map[string]string, moves, source, file string) (*Record, error) {
	r := &Record{
		Source:      source,
		File:        file,
		White:       strings.TrimSpace(tags["White"]),
		Black:       strings.TrimSpace(tags["Black"]),
		WhiteElo:    parseRating(tags["WhiteElo"]),
		BlackElo:    parseRating(tags["BlackElo"]),
		Result:      strings.TrimSpace(tags["Result"]),
		Date:        strings.TrimSpace(tags["Date"]),
		Round:       strings.TrimSpace(tags["Round"]),
		Event:       strings.TrimSpace(tags["Event"]),
		Site:        strings.TrimSpace(tags["Site"]),
		ECO:         strings.TrimSpace(tags["ECO"]),
		Opening:     strings.TrimSpace(tags["Opening"]),
		TimeControl: strings.TrimSpace(tags["TimeControl"]),
		Moves:       strings.TrimSpace(moves),
	}
	if _, err := Identity(r); err != nil {
		return nil, err
	}
	return r, nil
}

func parseRating(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}

func requireField(name, value string, placeholder bool) error {
	v := strings.TrimSpace(value)
	if v == "" || (placeholder && v == "?") {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}
