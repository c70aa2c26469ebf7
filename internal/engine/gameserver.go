package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"field-games/internal/idmap"
	"field-games/internal/sched"
	"field-games/internal/store"
)

// GameServer is the runtime aggregate for one live game: its timeline, its
// player registry, and its broadcast room. It exists only while the
// orchestrator has activated the game.
type GameServer struct {
	game              store.Game
	mode              Mode
	store             GameStore
	room              Room
	sched             *sched.Scheduler
	now               func() time.Time
	staleThresholdSec int64

	mu       sync.Mutex
	timeline *Timeline
	players  *idmap.Map[string, *Player]
}

func newGameServer(game store.Game, mode Mode, st GameStore, room Room, now func() time.Time, staleThresholdSec int64) *GameServer {
	return &GameServer{
		game:              game,
		mode:              mode,
		store:             st,
		room:              room,
		sched:             sched.New(),
		now:               now,
		staleThresholdSec: staleThresholdSec,
		players:           idmap.New[string, *Player](),
	}
}

func (g *GameServer) Game() store.Game {
	return g.game
}

// Start bulk-loads the roster and reconstructs the timeline concurrently.
// Either failure fails the whole start: a half-initialized game server is
// not a valid state.
func (g *GameServer) Start(ctx context.Context) error {
	var (
		wg        sync.WaitGroup
		roster    []store.RosterEntry
		rosterErr error
		tl        *Timeline
		tlErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		roster, rosterErr = g.store.ListRoster(ctx, g.game.ID)
	}()
	go func() {
		defer wg.Done()
		tl, tlErr = loadTimeline(ctx, g.store, g.game, g.room, g.sched, &g.mu, g.now, g.mode.CanPause)
	}()
	wg.Wait()
	if rosterErr != nil {
		g.sched.Clear()
		return fmt.Errorf("load roster for game %s: %w", g.game.ID, rosterErr)
	}
	if tlErr != nil {
		g.sched.Clear()
		return tlErr
	}

	g.mu.Lock()
	g.timeline = tl
	for _, e := range roster {
		g.players.Put(e.User.ID, newPlayer(e))
	}
	playerCount := g.players.Len()
	phase := tl.Phase()
	g.mu.Unlock()

	if err := g.mode.OnStart(ctx, g); err != nil {
		g.sched.Clear()
		return fmt.Errorf("mode %s start hook for game %s: %w", g.game.Mode, g.game.ID, err)
	}
	log.Info().
		Str("game_id", g.game.ID).
		Str("mode", g.game.Mode).
		Str("phase", string(phase)).
		Int("players", playerCount).
		Msg("game_server_started")
	return nil
}

// Stop freezes the timeline's scheduler, force-disconnects the room, then
// runs the mode's stop hook.
func (g *GameServer) Stop(ctx context.Context) error {
	g.sched.Clear()
	g.room.CloseAll("game_server_stopped")
	err := g.mode.OnStop(ctx, g)
	log.Info().Str("game_id", g.game.ID).Str("mode", g.game.Mode).Msg("game_server_stopped")
	if err != nil {
		return fmt.Errorf("mode %s stop hook for game %s: %w", g.game.Mode, g.game.ID, err)
	}
	return nil
}

func (g *GameServer) Pause(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeline.Pause(ctx)
}

func (g *GameServer) Resume(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeline.Resume(ctx)
}

func (g *GameServer) ForceEnd(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeline.ForceEnd(ctx)
}

func (g *GameServer) StateSync() StateSync {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeline.StateSync()
}

// AddUserAccess grants a user mid-game access: persists the grant, hydrates
// a player record, and runs the mode hook before the user can bind.
func (g *GameServer) AddUserAccess(ctx context.Context, userID string) error {
	u, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return userError("user_not_found", "no user %s", userID)
		}
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if err := g.store.GrantAccess(ctx, g.game.ID, userID); err != nil {
		return fmt.Errorf("grant access to game %s: %w", g.game.ID, err)
	}

	g.mu.Lock()
	if _, ok := g.players.Get(userID); !ok {
		g.players.Put(userID, newPlayer(store.RosterEntry{User: *u}))
	}
	g.mu.Unlock()

	if err := g.mode.OnUserAccessGranted(ctx, g, userID); err != nil {
		return fmt.Errorf("mode %s access hook: %w", g.game.Mode, err)
	}
	log.Info().Str("game_id", g.game.ID).Str("user_id", userID).Msg("user_access_granted")
	return nil
}

// JoinSnapshot is the consolidated state a client receives on binding; all
// later updates are deltas against it.
type JoinSnapshot struct {
	GameID string           `json:"game_id"`
	Mode   string           `json:"mode"`
	Sync   StateSync        `json:"sync"`
	Roster []PlayerSnapshot `json:"roster"`
}

func (g *GameServer) joinSnapshotLocked() JoinSnapshot {
	gameTime := g.timeline.GameTime()
	snap := JoinSnapshot{
		GameID: g.game.ID,
		Mode:   g.game.Mode,
		Sync:   g.timeline.StateSync(),
	}
	for _, p := range g.players.Values() {
		snap.Roster = append(snap.Roster, p.snapshot(gameTime, g.staleThresholdSec))
	}
	return snap
}

// Bind attaches a connection to the user's player record. Rebind wins: a
// newer connection for the same user displaces the previous one, never
// queued or rejected.
func (g *GameServer) Bind(conn Conn) error {
	userID := conn.UserID()
	g.mu.Lock()
	p, ok := g.players.Get(userID)
	if !ok {
		g.mu.Unlock()
		return userError("no_access", "user %s has no access to game %s", userID, g.game.ID)
	}
	old := p.conn
	p.conn = conn
	snap := g.joinSnapshotLocked()
	g.mu.Unlock()

	if old != nil {
		old.Close("rebound")
	}
	g.room.Join(conn)
	conn.Send("joined", snap)
	g.room.Broadcast("player_online", PresenceEvent{UserID: userID})
	log.Info().Str("game_id", g.game.ID).Str("user_id", userID).Bool("rebound", old != nil).Msg("player_bound")
	return nil
}

// HandleDisconnect clears the binding and announces the player offline, but
// only when the disconnecting connection is still the bound one: a stale
// disconnect from an already-displaced connection must not clobber a newer
// binding.
func (g *GameServer) HandleDisconnect(conn Conn) {
	userID := conn.UserID()
	g.mu.Lock()
	p, ok := g.players.Get(userID)
	stillBound := ok && p.conn == conn
	if stillBound {
		p.conn = nil
	}
	g.mu.Unlock()

	g.room.Leave(conn)
	if stillBound {
		g.room.Broadcast("player_offline", PresenceEvent{UserID: userID})
		log.Info().Str("game_id", g.game.ID).Str("user_id", userID).Msg("player_unbound")
	}
}

// UpdatePosition records a position sample, fans it out to the mode's
// recipient set, and persists it. An explicit game time older than the
// player's last recorded one is a hard ordering violation regardless of
// phase.
func (g *GameServer) UpdatePosition(ctx context.Context, userID string, coords Coordinates, gameTimeSec *int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players.Get(userID)
	if !ok {
		return userError("no_access", "user %s has no access to game %s", userID, g.game.ID)
	}
	if gameTimeSec != nil && *gameTimeSec < p.lastGameTime {
		return corrupt(g.game.ID, g.game.Mode,
			"position update for user %s at game time %d is older than last recorded %d",
			userID, *gameTimeSec, p.lastGameTime)
	}
	if g.timeline.Phase() != PhaseInProgress {
		return userError("game_not_running", "positions are only accepted while in_progress")
	}

	gt := g.timeline.GameTime()
	if gameTimeSec != nil {
		gt = *gameTimeSec
	}
	p.pos = coords
	p.hasFix = true
	p.lastGameTime = gt

	event := PositionEvent{UserID: userID, Position: coords, GameTimeSec: gt}
	for _, r := range g.mode.PositionRecipients(p, g.players.Values()) {
		if r.conn != nil {
			r.conn.Send("position", event)
		}
	}
	if err := g.store.InsertPositionSample(ctx, g.game.ID, userID, coords.Lat, coords.Lng, gt); err != nil {
		return fmt.Errorf("persist position for user %s: %w", userID, err)
	}
	return nil
}

// LobbyCounts reports roster size and how many players are online.
func (g *GameServer) LobbyCounts() (players, online int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.players.Len(), len(g.players.Filter((*Player).Online))
}
