package syncer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
)

// checkPublishedChunks refuses a plan that would rewrite a published chunk
// with anything but annotations. Every modified chunk must start with the
// remote chunk's records in order; only the remote's last chunk may grow.
func checkPublishedChunks(dir string, snap *Snapshot, p *Plan, log zerolog.Logger) error {
	last := -1
	for _, name := range snap.Names() {
		if id, ok := dataset.ParseChunkName(name); ok && id > last {
			last = id
		}
	}

	for _, c := range p.Changes {
		id, ok := dataset.ParseChunkName(c.Name)
		if !ok || c.Kind != Modified {
			continue
		}
		remoteData, err := snap.Read(c.Name)
		if err != nil {
			return err
		}
		published, err := chunk.Decode(id, remoteData, log)
		if err != nil {
			return fmt.Errorf("published %s: %w", c.Name, err)
		}
		localData, err := os.ReadFile(filepath.Join(dir, c.Name))
		if err != nil {
			return err
		}
		local, err := chunk.Decode(id, localData, log)
		if err != nil {
			return fmt.Errorf("local %s: %w", c.Name, err)
		}

		switch {
		case local.Len() < published.Len():
			return fmt.Errorf("%w: %s would drop published records (%d -> %d)",
				ErrPrecondition, c.Name, published.Len(), local.Len())
		case local.Len() > published.Len() && id != last:
			return fmt.Errorf("%w: %s is sealed on the remote but has %d local records, was %d",
				ErrPrecondition, c.Name, local.Len(), published.Len())
		}
		for i, want := range published.Records {
			if got := local.Records[i]; !got.SameGame(want) {
				return fmt.Errorf("%w: %s position %d would change from idx %d (%s) to idx %d (%s)",
					ErrPrecondition, c.Name, i, want.Idx, want.Hash, got.Idx, got.Hash)
			}
		}
	}
	return nil
}
