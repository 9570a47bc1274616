package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
}

func openGCS(ctx context.Context, u *url.URL, opts Options) (Store, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("gs url %q has no bucket", opts.URL)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{
		bucket: client.Bucket(u.Host),
		name:   u.Host,
		prefix: normPrefix(u.Path),
	}, nil
}

func (g *GCSStore) Location() string { return "gs://" + g.name + "/" + g.prefix }

func (g *GCSStore) List(ctx context.Context) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", g.Location(), err)
		}
		keys = append(keys, attrs.Name)
	}
	return names(g.prefix, keys), nil
}

func (g *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := g.prefix + name
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	key := g.prefix + name
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
