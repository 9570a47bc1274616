package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/freeeve/chessarchive/internal/game"
)

// StatsResponse summarizes the served dataset.
type StatsResponse struct {
	Chunks     int            `json:"chunks"`
	Records    int            `json:"records"`
	NextID     int            `json:"next_id"`
	Duplicates int            `json:"duplicates"`
	Indexes    map[string]int `json:"indexes"` // keys per index artifact
}

// GameResponse is one record plus where it lives.
type GameResponse struct {
	Chunk  int          `json:"chunk"`
	Record *game.Record `json:"record"`
}

// PlayerResponse lists the games of one player.
type PlayerResponse struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	IDs   []int  `json:"ids"`
}

type errorResponse struct {
	Error string `json:"error"`
	RID   string `json:"rid,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, RID: GetRequestID(r.Context())})
}

// writeRaw serves an artifact exactly as stored.
func writeRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
