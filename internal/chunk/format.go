package chunk

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/game"
)

// fullLayout is the self-describing chunk document. Range metadata is
// informational; the filename and record order are authoritative.
type fullLayout struct {
	Chunk    int            `json:"chunk"`
	FirstIdx int            `json:"first_idx"`
	LastIdx  int            `json:"last_idx"`
	Count    int            `json:"count"`
	Records  []*game.Record `json:"records"`
}

// Encode renders c in the full layout.
func Encode(c *Chunk) ([]byte, error) {
	doc := fullLayout{
		Chunk:   c.ID,
		Count:   len(c.Records),
		Records: c.Records,
	}
	if doc.Records == nil {
		doc.Records = []*game.Record{}
	}
	if n := len(c.Records); n > 0 {
		doc.FirstIdx = c.Records[0].Idx
		doc.LastIdx = c.Records[n-1].Idx
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode chunk %d: %w", c.ID, err)
	}
	return append(data, '\n'), nil
}

// Decode parses either chunk layout into a chunk with the given id.
// A bare JSON array is the minimal layout; an object is the full layout.
func Decode(id int, data []byte, log zerolog.Logger) (*Chunk, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: chunk %d is empty", ErrCorrupt, id)
	}

	var records []*game.Record
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, id, err)
		}
	case '{':
		var doc fullLayout
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, id, err)
		}
		if doc.Records == nil {
			return nil, fmt.Errorf("%w: chunk %d has no records field", ErrCorrupt, id)
		}
		if doc.Chunk != id {
			log.Warn().
				Int("chunk", id).
				Int("embedded", doc.Chunk).
				Msg("chunk id in document does not match filename, using filename")
		}
		records = doc.Records
	default:
		return nil, fmt.Errorf("%w: chunk %d: unexpected leading byte %q", ErrCorrupt, id, trimmed[0])
	}

	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("%w: chunk %d: null record at position %d", ErrCorrupt, id, i)
		}
		if r.Idx < 0 {
			return nil, fmt.Errorf("%w: chunk %d: negative idx %d at position %d", ErrCorrupt, id, r.Idx, i)
		}
	}
	return &Chunk{ID: id, Records: records}, nil
}
