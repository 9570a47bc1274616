package remote

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/freeeve/chessarchive/internal/dataset"
)

// DirStore keeps artifacts in a local directory, for mirrors and tests.
type DirStore struct {
	dir string
}

func openDir(ctx context.Context, u *url.URL, opts Options) (Store, error) {
	dir := u.Path
	if u.Host != "" && u.Host != "localhost" {
		dir = filepath.Join(u.Host, u.Path)
	}
	if dir == "" {
		return nil, fmt.Errorf("file url %q has no path", opts.URL)
	}
	return NewDirStore(dir), nil
}

// NewDirStore returns a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (d *DirStore) Location() string { return "file://" + d.dir }

func (d *DirStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *DirStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

func (d *DirStore) Put(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return err
	}
	return dataset.WriteFile(filepath.Join(d.dir, name), data)
}
