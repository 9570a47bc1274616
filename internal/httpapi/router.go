package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/freeeve/chessarchive/internal/chunk"
	"github.com/freeeve/chessarchive/internal/dataset"
	"github.com/freeeve/chessarchive/internal/index"
)

// indexKinds maps the {kind} route parameter to an artifact name.
var indexKinds = map[string]string{
	"players":  dataset.PlayersIndex,
	"eco":      dataset.ECOIndex,
	"openings": dataset.OpeningsIndex,
	"years":    dataset.YearsIndex,
	"chunks":   dataset.ChunksIndex,
	"hashes":   dataset.HashesIndex,
}

// Handler serves a read-only view of a loaded dataset.
type Handler struct {
	layout dataset.Layout
	store  *chunk.Store
	set    *index.Set
	log    zerolog.Logger
}

// NewRouter serves store and its derived index set. Index artifacts are read
// from layout so clients see the published bytes.
func NewRouter(log zerolog.Logger, layout dataset.Layout, store *chunk.Store, set *index.Set) http.Handler {
	h := &Handler{
		layout: layout,
		store:  store,
		set:    set,
		log:    log.With().Str("component", "httpapi").Logger(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(h.log))

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/games/{id}", h.game)
		r.Get("/chunks/{id}", h.chunk)
		r.Get("/index/{kind}", h.index)
		r.Get("/players/{name}", h.player)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatsResponse{
		Chunks:     len(h.store.Chunks()),
		Records:    h.store.Len(),
		NextID:     h.store.NextID(),
		Duplicates: h.set.Duplicates(),
		Indexes:    h.set.Counts(),
	})
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid game id")
		return
	}
	cid, ok := h.set.ChunkOf(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "game not found")
		return
	}
	c, ok := h.store.Chunk(cid)
	if !ok {
		h.log.Error().Str("rid", GetRequestID(r.Context())).Int("id", id).Int("chunk", cid).Msg("index points at missing chunk")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	for _, rec := range c.Records {
		if rec.Idx == id {
			writeJSON(w, GameResponse{Chunk: cid, Record: rec})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "game not found")
}

func (h *Handler) chunk(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid chunk id")
		return
	}
	h.serveArtifact(w, r, dataset.ChunkName(id))
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	name, ok := indexKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown index")
		return
	}
	h.serveArtifact(w, r, name)
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid player name")
		return
	}
	ids := h.set.Player(name)
	if len(ids) == 0 {
		writeError(w, r, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, PlayerResponse{Name: name, Count: len(ids), IDs: ids})
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, name string) {
	data, err := os.ReadFile(h.layout.ArtifactPath(name))
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, r, http.StatusNotFound, name+" not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Str("artifact", name).Msg("read artifact")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeRaw(w, data)
}
