package mvhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvmap"
)

type mapJSON struct {
	Name       string `json:"name"`
	WorkshopID int64  `json:"workshop_id"`
	Tier       int    `json:"tier"`

	// The label shown to players.
	Display string `json:"display"`
}

func toMapJSON(e mvmap.Entry) mapJSON {
	return mapJSON{
		Name:       e.Name,
		WorkshopID: e.WorkshopID,
		Tier:       e.Tier,
		Display:    e.DisplayName(),
	}
}

func toMapsJSON(entries []mvmap.Entry) []mapJSON {
	out := make([]mapJSON, len(entries))
	for i, e := range entries {
		out[i] = toMapJSON(e)
	}
	return out
}

type playerRequest struct {
	PlayerID   int    `json:"player_id"`
	PlayerName string `json:"player_name"`
}

func (r playerRequest) player() mvengine.Player {
	return mvengine.Player{ID: r.PlayerID, Name: r.PlayerName}
}

type rtvRequest struct {
	playerRequest
	ConnectedPlayers int `json:"connected_players"`
}

type rtvResponse struct {
	Count    int  `json:"count"`
	Required int  `json:"required"`
	Started  bool `json:"started"`
}

type nominateRequest struct {
	playerRequest
	Args []string `json:"args"`
}

type ballotRequest struct {
	playerRequest
	Option int `json:"option"`
}

type disconnectRequest struct {
	PlayerID int `json:"player_id"`
}

type statusResponse struct {
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state"`

	Options   []mapJSON `json:"options"`
	Tally     []int     `json:"tally"`
	Remaining int       `json:"remaining"`

	Nominations []mapJSON `json:"nominations"`
	RTVCount    int       `json:"rtv_count"`

	MapChanging bool     `json:"map_changing"`
	PendingMap  *mapJSON `json:"pending_map,omitempty"`

	PoolSize      int       `json:"pool_size"`
	PoolFetchedAt time.Time `json:"pool_fetched_at"`
}

func toStatusResponse(s mvengine.Status) statusResponse {
	resp := statusResponse{
		State: s.State.String(),

		Options:   toMapsJSON(s.Slate),
		Tally:     s.Tally,
		Remaining: s.Remaining,

		Nominations: toMapsJSON(s.Nominations),
		RTVCount:    s.RTVCount,

		MapChanging: s.MapChanging,

		PoolSize:      s.PoolSize,
		PoolFetchedAt: s.PoolFetchedAt,
	}
	if s.SessionID != uuid.Nil {
		resp.SessionID = s.SessionID.String()
	}
	if s.MapChanging {
		m := toMapJSON(s.PendingMap)
		resp.PendingMap = &m
	}
	return resp
}

type poolResponse struct {
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
	Maps      []mapJSON `json:"maps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to encode response", "err", err)
	}
}
