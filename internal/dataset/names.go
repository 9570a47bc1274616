package dataset

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Artifact file names. Remote keys are prefix+name, so these never change.
const (
	PlayersIndex  = "index_players.json"
	ECOIndex      = "index_eco.json"
	OpeningsIndex = "index_openings.json"
	YearsIndex    = "index_years.json"
	ChunksIndex   = "index_chunks.json"
	HashesIndex   = "index_hashes.json"

	chunkPrefix = "chunk_"
	chunkSuffix = ".json"
)

// IndexNames lists every secondary index artifact in publication order.
var IndexNames = []string{
	PlayersIndex,
	ECOIndex,
	OpeningsIndex,
	YearsIndex,
	ChunksIndex,
	HashesIndex,
}

// ChunkName returns the artifact name for chunk id.
func ChunkName(id int) string {
	return fmt.Sprintf("%s%d%s", chunkPrefix, id, chunkSuffix)
}

// ParseChunkName extracts the chunk id from an artifact name.
func ParseChunkName(name string) (int, bool) {
	if !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkSuffix) {
		return 0, false
	}
	digits := name[len(chunkPrefix) : len(name)-len(chunkSuffix)]
	if digits == "" {
		return 0, false
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id < 0 || strconv.Itoa(id) != digits {
		return 0, false
	}
	return id, true
}

// IsArtifact reports whether name is a publishable artifact.
func IsArtifact(name string) bool {
	if _, ok := ParseChunkName(name); ok {
		return true
	}
	for _, n := range IndexNames {
		if n == name {
			return true
		}
	}
	return false
}

// ListArtifacts returns the artifact names present in dir, sorted.
func ListArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsArtifact(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
