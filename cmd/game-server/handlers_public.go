package main

import (
	"encoding/json"
	"net/http"

	"field-games/internal/engine"
	"field-games/internal/store"
	"field-games/internal/ws"
)

func healthHandler(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "db": "up"})
	}
}

func lobbyHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		items, err := orch.LobbyForUser(r.Context(), userID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

func joinAdvertsHandler(orch *engine.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		items, err := orch.JoinAdvertsForUser(r.Context(), userID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}
}

// Identity arrives as query parameters; authentication happens upstream of
// this service.
func wsHandler(wsServer *ws.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		gameID := r.URL.Query().Get("game_id")
		if userID == "" || gameID == "" {
			writeHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		wsServer.HandleConn(w, r, userID, gameID)
	}
}
