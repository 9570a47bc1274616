package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var flaky int32
	mux := http.NewServeMux()
	mux.HandleFunc("/games.pgn", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chessarchive-test", r.Header.Get("User-Agent"))
		w.Header().Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
		w.Header().Set("ETag", `"v1"`)
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte("[White \"A\"]\n\n1. e4 *\n"))
	})
	mux.HandleFunc("/flaky.pgn", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&flaky, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/gone.pgn", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &flaky
}

func testClient() *Client {
	return New(Config{
		Timeout:    2 * time.Second,
		UserAgent:  "chessarchive-test",
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
	})
}

func TestProbe(t *testing.T) {
	srv, _ := newServer(t)
	meta, err := testClient().Probe(context.Background(), srv.URL+"/games.pgn")
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, meta.ETag)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", meta.Modified)
}

func TestFetch(t *testing.T) {
	srv, _ := newServer(t)
	var buf bytes.Buffer
	meta, err := testClient().Fetch(context.Background(), srv.URL+"/games.pgn", &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1. e4")
	assert.Equal(t, int64(buf.Len()), meta.Size)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	srv, calls := newServer(t)
	var buf bytes.Buffer
	_, err := testClient().Fetch(context.Background(), srv.URL+"/flaky.pgn", &buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	srv, _ := newServer(t)
	_, err := testClient().Fetch(context.Background(), srv.URL+"/gone.pgn", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

type fakeProber struct {
	inflight, peak int32
}

func (f *fakeProber) Probe(ctx context.Context, url string) (Meta, error) {
	n := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if url == "bad" {
		return Meta{}, errors.New("connection reset")
	}
	return Meta{ETag: "e-" + url}, nil
}

func TestProbeAllIsolatesFailures(t *testing.T) {
	p := &fakeProber{}
	urls := []string{"a", "bad", "c", "d", "e", "f"}

	results := ProbeAll(context.Background(), p, urls, 2)
	require.Len(t, results, len(urls))
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		if r.URL == "bad" {
			assert.Error(t, r.Err)
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, "e-"+r.URL, r.ETag)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&p.peak), int32(2))
}
