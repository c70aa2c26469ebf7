package main

import (
	"testing"
	"time"

	"field-games/internal/config"
	"field-games/internal/engine"
	"field-games/internal/mode"
	"field-games/internal/store"
	"field-games/internal/testutil"
	"field-games/internal/ws"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) (*store.Store, *engine.Orchestrator, *chi.Mux, func()) {
	t.Helper()
	st, cleanup := testutil.OpenTestStore(t)
	wsServer := ws.NewServer()
	orch, err := engine.NewOrchestrator(engine.Options{
		Store:    st,
		Rooms:    wsServer,
		Modes:    mode.Factory,
		LeadTime: time.Minute,
	})
	if err != nil {
		cleanup()
		t.Fatalf("orchestrator: %v", err)
	}
	wsServer.AttachOrchestrator(orch)
	cfg := config.ServerConfig{AdminAPIKey: "admin-key"}
	return st, orch, newRouter(st, cfg, orch, wsServer), cleanup
}
