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

// Options configures the orchestrator. Store, Rooms and Modes are required.
type Options struct {
	Store             GameStore
	Rooms             Rooms
	Modes             ModeFactory
	LeadTime          time.Duration
	StaleThresholdSec int64
}

// Orchestrator owns the set of live game servers. Every path that can bring
// a game server up (boot load, scheduled activation, admin create) funnels
// through the same reserve-and-start path, so one game can never end up with
// two runtimes.
type Orchestrator struct {
	store             GameStore
	rooms             Rooms
	modes             ModeFactory
	leadTime          time.Duration
	staleThresholdSec int64
	sched             *sched.Scheduler
	now               func() time.Time

	mu       sync.Mutex
	live     *idmap.Map[string, *GameServer]
	starting map[string]struct{}
}

var (
	instanceMu sync.Mutex
	instance   *Orchestrator
)

// Initialize constructs the process-wide orchestrator. Calling it twice is a
// programming error, as is Instance before Initialize: there is no lazy
// construction path.
func Initialize(opts Options) (*Orchestrator, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return nil, errors.New("orchestrator already initialized")
	}
	o, err := NewOrchestrator(opts)
	if err != nil {
		return nil, err
	}
	instance = o
	return o, nil
}

// Instance returns the orchestrator constructed by Initialize.
func Instance() (*Orchestrator, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, errors.New("orchestrator not initialized")
	}
	return instance, nil
}

// NewOrchestrator builds a standalone orchestrator. Most callers want
// Initialize, which also registers the process-wide instance.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil || opts.Rooms == nil || opts.Modes == nil {
		return nil, errors.New("orchestrator requires store, rooms and mode factory")
	}
	if opts.LeadTime <= 0 {
		return nil, errors.New("orchestrator requires a positive lead time")
	}
	if opts.StaleThresholdSec <= 0 {
		opts.StaleThresholdSec = 30
	}
	return &Orchestrator{
		store:             opts.Store,
		rooms:             opts.Rooms,
		modes:             opts.Modes,
		leadTime:          opts.LeadTime,
		staleThresholdSec: opts.StaleThresholdSec,
		sched:             sched.New(),
		now:               time.Now,
		live:              idmap.New[string, *GameServer](),
		starting:          map[string]struct{}{},
	}, nil
}

// LoadState loads every non-ended game: the ones whose start is within the
// lead-time window come up immediately and concurrently, the rest get a
// scheduled activation. Per-game failures are collected and raised together
// after the whole batch, so one bad game cannot starve the others.
func (o *Orchestrator) LoadState(ctx context.Context) error {
	games, err := o.store.ListOpenGames(ctx)
	if err != nil {
		return fmt.Errorf("list open games: %w", err)
	}
	now := o.now()

	var due []store.GameWithStart
	for _, g := range games {
		if g.FirstStartAt.Add(-o.leadTime).After(now) {
			o.scheduleActivation(g.ID, g.FirstStartAt)
		} else {
			due = append(due, g)
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(due))
	for i, g := range due {
		wg.Add(1)
		go func(i int, game store.Game) {
			defer wg.Done()
			errs[i] = o.Activate(ctx, game)
		}(i, g.Game)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Activate is the single instantiate-and-register path. The game id is
// reserved in the starting set before the (slow) start so concurrent
// activations of the same game collapse into one, but the server only enters
// the live registry once Start has succeeded: a half-started server is never
// reachable through liveServer (callers get game_not_live until then).
func (o *Orchestrator) Activate(ctx context.Context, game store.Game) error {
	mode, err := o.modes(game.Mode)
	if err != nil {
		return corrupt(game.ID, game.Mode, "no mode implementation: %v", err)
	}

	o.mu.Lock()
	if _, ok := o.live.Get(game.ID); ok {
		o.mu.Unlock()
		log.Debug().Str("game_id", game.ID).Msg("game already live, activation skipped")
		return nil
	}
	if _, ok := o.starting[game.ID]; ok {
		o.mu.Unlock()
		log.Debug().Str("game_id", game.ID).Msg("activation already in flight, skipped")
		return nil
	}
	o.starting[game.ID] = struct{}{}
	o.mu.Unlock()

	gs := newGameServer(game, mode, o.store, o.rooms.Room(game.ID), o.now, o.staleThresholdSec)
	if err := gs.Start(ctx); err != nil {
		o.mu.Lock()
		delete(o.starting, game.ID)
		o.mu.Unlock()
		return fmt.Errorf("activate game %s: %w", game.ID, err)
	}

	o.mu.Lock()
	delete(o.starting, game.ID)
	o.live.Put(game.ID, gs)
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) scheduleActivation(gameID string, startAt time.Time) {
	o.sched.ScheduleAt(startAt.Add(-o.leadTime), "activate:"+gameID, func(ctx context.Context) error {
		game, err := o.store.GetGame(ctx, gameID)
		if err != nil {
			return fmt.Errorf("load game %s for activation: %w", gameID, err)
		}
		if game.Ended {
			return nil
		}
		return o.Activate(ctx, *game)
	})
}

// ScheduleNewGame persists a game with its first (open, future-start)
// interval and arms its activation. The activation task also covers start
// times already inside the lead-time window: a past-due instant fires
// immediately.
func (o *Orchestrator) ScheduleNewGame(ctx context.Context, modeTag string, startAt time.Time) (string, error) {
	if !startAt.After(o.now()) {
		return "", userError("start_in_past", "start time %s is not in the future", startAt.Format(time.RFC3339))
	}
	if _, err := o.modes(modeTag); err != nil {
		return "", userError("unknown_mode", "no game mode %q", modeTag)
	}
	id, err := o.store.CreateGame(ctx, modeTag, startAt)
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}
	o.scheduleActivation(id, startAt)
	log.Info().Str("game_id", id).Str("mode", modeTag).Time("start_at", startAt).Msg("game_scheduled")
	return id, nil
}

// Restart is the sole recovery primitive: cancel all scheduled work, stop
// every live server best-effort, clear the registry and reload from storage.
// The result must be indistinguishable from a process restart.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.sched.Clear()

	o.mu.Lock()
	servers := o.live
	o.live = idmap.New[string, *GameServer]()
	o.mu.Unlock()

	stopErr := servers.ConcurrentEach(func(id string, gs *GameServer) error {
		if err := gs.Stop(ctx); err != nil {
			return fmt.Errorf("stop game %s: %w", id, err)
		}
		return nil
	})
	log.Info().Int("stopped", servers.Len()).Msg("orchestrator_restarting")
	return errors.Join(stopErr, o.LoadState(ctx))
}

func (o *Orchestrator) liveServer(gameID string) (*GameServer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	gs, ok := o.live.Get(gameID)
	if !ok {
		return nil, userError("game_not_live", "game %s has no live runtime", gameID)
	}
	return gs, nil
}

// LiveGameIDs returns the ids of currently live games in activation order.
func (o *Orchestrator) LiveGameIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live.Keys()
}

func (o *Orchestrator) Pause(ctx context.Context, gameID string) error {
	gs, err := o.liveServer(gameID)
	if err != nil {
		return err
	}
	return gs.Pause(ctx)
}

func (o *Orchestrator) Resume(ctx context.Context, gameID string) error {
	gs, err := o.liveServer(gameID)
	if err != nil {
		return err
	}
	return gs.Resume(ctx)
}

// AddPlayer grants a user access to a game. A live game hydrates the player
// immediately; for a not-yet-live game only the grant is persisted and the
// roster load at activation picks it up.
func (o *Orchestrator) AddPlayer(ctx context.Context, gameID, userID string) error {
	o.mu.Lock()
	gs, live := o.live.Get(gameID)
	o.mu.Unlock()
	if live {
		return gs.AddUserAccess(ctx, userID)
	}

	game, err := o.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return userError("game_not_found", "no game %s", gameID)
		}
		return fmt.Errorf("load game %s: %w", gameID, err)
	}
	if game.Ended {
		return userError("game_ended", "game %s has ended", gameID)
	}
	if _, err := o.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return userError("user_not_found", "no user %s", userID)
		}
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if err := o.store.GrantAccess(ctx, gameID, userID); err != nil {
		return fmt.Errorf("grant access to game %s: %w", gameID, err)
	}
	log.Info().Str("game_id", gameID).Str("user_id", userID).Msg("user_access_granted")
	return nil
}

// EndGame administratively terminates a game: the timeline is force-ended so
// no open interval survives, the runtime is stopped and unregistered, and the
// ended flag is persisted.
func (o *Orchestrator) EndGame(ctx context.Context, gameID string) error {
	o.mu.Lock()
	gs, live := o.live.Get(gameID)
	if live {
		o.live.Delete(gameID)
	}
	o.mu.Unlock()

	if live {
		if err := gs.ForceEnd(ctx); err != nil {
			return err
		}
		if err := gs.Stop(ctx); err != nil {
			return err
		}
	} else {
		game, err := o.store.GetGame(ctx, gameID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return userError("game_not_found", "no game %s", gameID)
			}
			return fmt.Errorf("load game %s: %w", gameID, err)
		}
		if game.Ended {
			return userError("game_ended", "game %s has already ended", gameID)
		}
		if err := o.closeOpenInterval(ctx, gameID); err != nil {
			return err
		}
	}
	if err := o.store.EndGame(ctx, gameID); err != nil {
		return fmt.Errorf("end game %s: %w", gameID, err)
	}
	log.Info().Str("game_id", gameID).Msg("game_terminated")
	return nil
}

// closeOpenInterval closes a dormant game's trailing open interval, keeping
// the ended-games-have-no-open-interval invariant for games that never came
// up (e.g. terminated before their scheduled start).
func (o *Orchestrator) closeOpenInterval(ctx context.Context, gameID string) error {
	intervals, err := o.store.ListIntervals(ctx, gameID)
	if err != nil {
		return fmt.Errorf("list intervals for game %s: %w", gameID, err)
	}
	if len(intervals) == 0 {
		return nil
	}
	last := intervals[len(intervals)-1]
	if last.EndedAt != nil {
		return nil
	}
	now := o.now()
	var duration int64
	if now.After(last.StartedAt) {
		duration = int64(now.Sub(last.StartedAt).Seconds())
	}
	return o.store.CloseInterval(ctx, last.ID, now, duration)
}

// Bind attaches an authenticated connection to its player in the owning
// live game server.
func (o *Orchestrator) Bind(_ context.Context, gameID string, conn Conn) error {
	gs, err := o.liveServer(gameID)
	if err != nil {
		return err
	}
	return gs.Bind(conn)
}

// HandleDisconnect routes a connection teardown to the owning game server,
// if it is still live.
func (o *Orchestrator) HandleDisconnect(gameID string, conn Conn) {
	gs, err := o.liveServer(gameID)
	if err != nil {
		return
	}
	gs.HandleDisconnect(conn)
}

func (o *Orchestrator) UpdatePosition(ctx context.Context, gameID, userID string, coords Coordinates, gameTimeSec *int64) error {
	gs, err := o.liveServer(gameID)
	if err != nil {
		return err
	}
	return gs.UpdatePosition(ctx, userID, coords, gameTimeSec)
}
