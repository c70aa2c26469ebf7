package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"field-games/internal/config"
	"field-games/internal/engine"
	"field-games/internal/logging"
	"field-games/internal/mode"
	"field-games/internal/store"
	"field-games/internal/ws"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("load server config failed")
	}

	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	wsServer := ws.NewServer()
	orch, err := engine.Initialize(engine.Options{
		Store:             st,
		Rooms:             wsServer,
		Modes:             mode.Factory,
		LeadTime:          cfg.LeadTime,
		StaleThresholdSec: cfg.StaleThresholdSec,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator init failed")
	}
	wsServer.AttachOrchestrator(orch)

	// Individual corrupt games are already isolated and logged; a partial
	// boot keeps serving the healthy ones.
	if err := orch.LoadState(context.Background()); err != nil {
		log.Error().Err(err).Msg("some games failed to load")
	}

	r := newRouter(st, cfg, orch, wsServer)
	logRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("server stopped")
}
