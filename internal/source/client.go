// Package source talks to upstream game archives over HTTP.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Meta is what an upstream reports about one file.
type Meta struct {
	URL      string
	Modified string // Last-Modified header
	ETag     string
	Size     int64
}

// Config configures the HTTP client.
type Config struct {
	Timeout    time.Duration // Per-request timeout (default 60s)
	UserAgent  string        // User-Agent header
	MaxRetries int           // Retries after the first attempt, 0 disables
	RetryWait  time.Duration // Initial backoff interval (default 500ms)
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "chessarchive/1.0"
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 500 * time.Millisecond
	}
}

// Client probes and downloads upstream files.
type Client struct {
	http *http.Client
	cfg  Config
}

// New creates a client with a bounded request timeout.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d", e.URL, e.Code)
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryWait
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// do sends a request, retrying transport errors and 5xx responses.
func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		r, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, url, err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			serr := &StatusError{URL: url, Code: r.StatusCode}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return serr
			}
			return backoff.Permanent(serr)
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func metaOf(url string, resp *http.Response) Meta {
	return Meta{
		URL:      url,
		Modified: resp.Header.Get("Last-Modified"),
		ETag:     resp.Header.Get("ETag"),
		Size:     resp.ContentLength,
	}
}

// Probe issues a HEAD request and returns the file's validators.
func (c *Client) Probe(ctx context.Context, url string) (Meta, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return Meta{URL: url}, err
	}
	resp.Body.Close()
	return metaOf(url, resp), nil
}

// Fetch downloads url into dst. The body copy is not retried, so a failure
// midway leaves dst partially written and the caller discards it.
func (c *Client) Fetch(ctx context.Context, url string, dst io.Writer) (Meta, error) {
	resp, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return Meta{URL: url}, err
	}
	defer resp.Body.Close()

	meta := metaOf(url, resp)
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return meta, fmt.Errorf("read body of %s: %w", url, err)
	}
	meta.Size = n
	return meta, nil
}

// IsStatus reports whether err is an HTTP status error with the given code.
func IsStatus(err error, code int) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.Code == code
}
