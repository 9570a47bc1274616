// Package remote is the object store the archive is published to. Every
// artifact lives at prefix+filename; that mapping never changes because
// consumers hard-code it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Store is a flat object store scoped to one key prefix. Names passed to and
// returned from a Store are artifact filenames without the prefix.
type Store interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	// Location describes where the store points, for logs.
	Location() string
}

// Options configures Open.
type Options struct {
	URL      string // s3://bucket/prefix/, gs://bucket/prefix/, file:///dir/, mem://
	Region   string // S3 region
	Endpoint string // S3-compatible endpoint override
}

type factory func(ctx context.Context, u *url.URL, opts Options) (Store, error)

var factories = map[string]factory{
	"s3":   openS3,
	"gs":   openGCS,
	"file": openDir,
	"mem":  openMem,
}

// Open returns the store for opts.URL, chosen by scheme.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("remote url is empty")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	f, ok := factories[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
	}
	return f(ctx, u, opts)
}

// normPrefix turns a url path into a key prefix: no leading slash, and a
// trailing slash unless empty.
func normPrefix(p string) string {
	p = strings.TrimLeft(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// names strips prefix from keys, keeps only direct children, and sorts.
func names(prefix string, keys []string) []string {
	var out []string
	for _, k := range keys {
		name, ok := strings.CutPrefix(k, prefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
