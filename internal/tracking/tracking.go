// Package tracking records what was last seen of each upstream source. It
// only decides whether to re-fetch; the dedup index decides admission.
package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/freeeve/chessarchive/internal/dataset"
)

// File is the last observed metadata of one upstream file.
type File struct {
	RemoteModified string    `json:"remote_modified"`
	ETag           string    `json:"etag"`
	Records        int       `json:"records"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// Source is the tracking entry of one upstream source.
type Source struct {
	LastChecked time.Time        `json:"last_checked"`
	Files       map[string]*File `json:"files"`
}

// State is the tracking document, keyed by source name.
type State map[string]*Source

// Load reads the state at path. A missing file is an empty state.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if st == nil {
		st = State{}
	}
	for _, src := range st {
		if src != nil && src.Files == nil {
			src.Files = make(map[string]*File)
		}
	}
	return st, nil
}

// Save writes the state to path.
func (st State) Save(path string) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracking: %w", err)
	}
	return dataset.WriteFile(path, append(data, '\n'))
}

func (st State) source(name string) *Source {
	src, ok := st[name]
	if !ok || src == nil {
		src = &Source{Files: make(map[string]*File)}
		st[name] = src
	}
	return src
}

// Changed reports whether url should be fetched again. A file is unchanged
// only if it was fetched before and both validators still match.
func (st State) Changed(source, url, modified, etag string) bool {
	src, ok := st[source]
	if !ok || src == nil {
		return true
	}
	f, ok := src.Files[url]
	if !ok || f == nil {
		return true
	}
	if modified == "" && etag == "" {
		return true
	}
	return f.RemoteModified != modified || f.ETag != etag
}

// Checked stamps the last time source was probed.
func (st State) Checked(source string, at time.Time) {
	st.source(source).LastChecked = at.UTC()
}

// Fetched records a successful fetch of url.
func (st State) Fetched(source, url, modified, etag string, records int, at time.Time) {
	st.source(source).Files[url] = &File{
		RemoteModified: modified,
		ETag:           etag,
		Records:        records,
		FetchedAt:      at.UTC(),
	}
}

// Names returns the tracked source names, sorted.
func (st State) Names() []string {
	names := make([]string, 0, len(st))
	for n := range st {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
