package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/game"
	"github.com/freeeve/chessarchive/internal/index"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	layout := dataset.NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())
	store, err := chunk.Open(chunk.Config{Dir: layout.ArtifactsDir(), Capacity: 2, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for i, white := range []string{"Carlsen", "Caruana", "Carlsen"} {
		r := &game.Record{Idx: store.NextID(), White: white, Black: "Nakamura", Result: "1/2-1/2", Date: "2023.05.01", Round: strconv.Itoa(i + 1), Moves: "e4 e5"}
		r.Hash, err = game.FingerprintRecord(r)
		require.NoError(t, err)
		_, _, err = store.Append(r)
		require.NoError(t, err)
	}
	_, err = store.Flush()
	require.NoError(t, err)

	set := index.Build(store.Chunks())
	_, err = set.Write(layout.ArtifactsDir())
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), layout, store, set))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDPassthrough(t *testing.T) {
	srv := newServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc123", resp.Header.Get("X-Request-ID"))
}

func TestStats(t *testing.T) {
	srv := newServer(t)
	resp, body := get(t, srv, "/v1/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatsResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, 2, st.Chunks)
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, 3, st.NextID)
	assert.Equal(t, 3, st.Indexes[dataset.PlayersIndex])
	assert.Equal(t, 1, st.Indexes[dataset.YearsIndex])
	assert.Equal(t, 3, st.Indexes[dataset.HashesIndex])
}

func TestGame(t *testing.T) {
	srv := newServer(t)
	resp, body := get(t, srv, "/v1/games/2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g GameResponse
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, 1, g.Chunk)
	require.NotNil(t, g.Record)
	assert.Equal(t, 2, g.Record.Idx)
	assert.Equal(t, "Carlsen", g.Record.White)

	resp, _ = get(t, srv, "/v1/games/99")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, srv, "/v1/games/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChunkAndIndex(t *testing.T) {
	srv := newServer(t)

	resp, body := get(t, srv, "/v1/chunks/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "Caruana")

	resp, _ = get(t, srv, "/v1/chunks/5")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get(t, srv, "/v1/index/chunks")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[0,0,1]\n", string(body))

	resp, _ = get(t, srv, "/v1/index/bogus")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlayer(t *testing.T) {
	srv := newServer(t)
	resp, body := get(t, srv, "/v1/players/Carlsen")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p PlayerResponse
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "Carlsen", p.Name)
	assert.Equal(t, []int{0, 2}, p.IDs)

	resp, body = get(t, srv, "/v1/players/Nakamura")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, 3, p.Count)

	resp, _ = get(t, srv, "/v1/players/Nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
