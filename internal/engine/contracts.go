// Package engine hosts the session orchestration and virtual-timeline core:
// the orchestrator that owns live game runtimes, the per-game timeline that
// virtualizes the game clock, and the player/connection binding layer.
package engine

import (
	"context"
	"time"

	"field-games/internal/store"
)

// Phase of a game's timeline. Reconstructed from persisted play intervals,
// never persisted directly.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhasePaused     Phase = "paused"
	PhaseEnded      Phase = "ended"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StateSync is the point-in-time clock snapshot clients extrapolate from
// while the phase is in_progress.
type StateSync struct {
	GameTimeSec   int64 `json:"game_time_sec"`
	SyncInstantMS int64 `json:"sync_instant_ms"`
	Phase         Phase `json:"phase"`
}

// GameStore is the persistence contract the engine consumes. *store.Store
// satisfies it.
type GameStore interface {
	GetGame(ctx context.Context, id string) (*store.Game, error)
	CreateGame(ctx context.Context, mode string, startAt time.Time) (string, error)
	EndGame(ctx context.Context, id string) error
	ListOpenGames(ctx context.Context) ([]store.GameWithStart, error)
	ListGamesForUser(ctx context.Context, userID string) ([]store.GameWithStart, error)
	ListIntervals(ctx context.Context, gameID string) ([]store.PlayInterval, error)
	InsertInterval(ctx context.Context, gameID string, startAt time.Time) (string, error)
	CloseInterval(ctx context.Context, intervalID string, endedAt time.Time, durationSec int64) error
	GrantAccess(ctx context.Context, gameID, userID string) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	ListRoster(ctx context.Context, gameID string) ([]store.RosterEntry, error)
	InsertPositionSample(ctx context.Context, gameID, userID string, lat, lng float64, gameTimeSec int64) error
}

// Conn is one live, already-authenticated client connection. Send and Close
// must be safe to call from any goroutine and after the peer is gone.
type Conn interface {
	UserID() string
	Send(event string, payload any)
	Close(reason string)
}

// Room is the broadcast group for one game.
type Room interface {
	Join(Conn)
	Leave(Conn)
	Broadcast(event string, payload any)
	CloseAll(reason string)
}

// Rooms hands out the room for a game, creating it on demand.
type Rooms interface {
	Room(gameID string) Room
}

// Mode is the per-game-mode extension point. PositionRecipients and CanPause
// are called with the game lock held and must not call back into the engine.
type Mode interface {
	Tag() string
	OnStart(ctx context.Context, g *GameServer) error
	OnStop(ctx context.Context, g *GameServer) error
	OnUserAccessGranted(ctx context.Context, g *GameServer, userID string) error
	CanPause(gameTimeSec int64) bool
	PositionRecipients(from *Player, roster []*Player) []*Player
}

// ModeFactory resolves a mode tag to its implementation.
type ModeFactory func(tag string) (Mode, error)
