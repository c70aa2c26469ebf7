package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"field-games/internal/config"
	"field-games/internal/engine"
	"field-games/internal/store"
	"field-games/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func newRouter(st *store.Store, cfg config.ServerConfig, orch *engine.Orchestrator, wsServer *ws.Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(apiLogMiddleware()).Get("/healthz", healthHandler(st))

	// Upgraded connections bypass the logging middleware; httplog would
	// try to record a response that never completes.
	r.Get("/ws", wsHandler(wsServer))

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLogMiddleware())
		r.Use(bodyCaptureMiddleware())
		r.Get("/lobby", lobbyHandler(orch))
		r.Get("/join-adverts", joinAdvertsHandler(orch))

		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(cfg.AdminAPIKey))
			r.Post("/admin/games", createGameHandler(orch))
			r.Get("/admin/games", listGamesHandler(st, orch))
			r.Post("/admin/games/{game_id}/pause", pauseGameHandler(orch))
			r.Post("/admin/games/{game_id}/resume", resumeGameHandler(orch))
			r.Post("/admin/games/{game_id}/end", endGameHandler(orch))
			r.Post("/admin/games/{game_id}/players", addPlayerHandler(st, orch))
			r.Post("/admin/restart", restartHandler(orch))
		})
	})

	return r
}

func logRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
