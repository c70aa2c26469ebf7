package main

import (
	"encoding/json"
	"net/http"
	"time"

	"field-games/internal/engine"
	"field-games/internal/store"

	"github.com/go-chi/chi/v5"
)

func createGameHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode    string `json:"mode"`
			StartAt string `json:"start_at"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.Mode == "" || body.StartAt == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		startAt, err := time.Parse(time.RFC3339, body.StartAt)
		if err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		id, err := orch.ScheduleNewGame(r.Context(), body.Mode, startAt)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "game_id": id})
	}
}

func listGamesHandler(st *store.Store, orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games, err := st.ListOpenGames(r.Context())
		if err != nil {
			writeHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		live := make(map[string]bool)
		for _, id := range orch.LiveGameIDs() {
			live[id] = true
		}
		out := make([]map[string]any, 0, len(games))
		for _, g := range games {
			out = append(out, map[string]any{
				"game_id":    g.ID,
				"mode":       g.Mode,
				"start_at":   g.FirstStartAt,
				"created_at": g.CreatedAt,
				"live":       live[g.ID],
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": out})
	}
}

func pauseGameHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Pause(r.Context(), chi.URLParam(r, "game_id")); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func resumeGameHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Resume(r.Context(), chi.URLParam(r, "game_id")); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func endGameHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.EndGame(r.Context(), chi.URLParam(r, "game_id")); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func addPlayerHandler(st *store.Store, orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		var body struct {
			UserID      string `json:"user_id"`
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if body.DisplayName != "" {
			if err := st.EnsureUser(r.Context(), body.UserID, body.DisplayName); err != nil {
				writeHTTPError(w, http.StatusInternalServerError, "internal_error")
				return
			}
		}
		if err := orch.AddPlayer(r.Context(), gameID, body.UserID); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func restartHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.Restart(r.Context()); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "live": orch.LiveGameIDs()})
	}
}
