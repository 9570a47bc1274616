package source

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prober returns the current metadata of an upstream file.
type Prober interface {
	Probe(ctx context.Context, url string) (Meta, error)
}

// ProbeResult is the outcome of probing one file. A failed probe carries
// Err and is treated as changed by callers.
type ProbeResult struct {
	Meta
	Err error
}

// ProbeAll probes urls concurrently, at most concurrency at a time. One
// failure never cancels the others; results are in the order of urls.
func ProbeAll(ctx context.Context, p Prober, urls []string, concurrency int) []ProbeResult {
	if concurrency <= 0 {
		concurrency = 8
	}
	results := make([]ProbeResult, len(urls))

	var eg errgroup.Group
	eg.SetLimit(concurrency)
	for i, url := range urls {
		eg.Go(func() error {
			meta, err := p.Probe(ctx, url)
			meta.URL = url
			results[i] = ProbeResult{Meta: meta, Err: err}
			return nil
		})
	}
	eg.Wait()
	return results
}
