package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"field-games/internal/sched"
	"field-games/internal/store"
)

// interval is a play interval annotated with its cumulative game-time
// offsets. endedAt/endGameTime are meaningful only once closed.
type interval struct {
	id            string
	startedAt     time.Time
	endedAt       *time.Time
	startGameTime int64
	endGameTime   int64
}

func (iv *interval) open() bool {
	return iv.endedAt == nil
}

// Timeline is the per-game virtual clock, reconstructed from the game's
// persisted play intervals. Methods do not lock: callers hold the owning
// GameServer's mutex. Only the scheduled start flip acquires mu itself,
// because it runs on the scheduler goroutine.
type Timeline struct {
	gameID   string
	modeTag  string
	store    GameStore
	room     Room
	sched    *sched.Scheduler
	mu       *sync.Mutex
	now      func() time.Time
	canPause func(gameTimeSec int64) bool

	phase     Phase
	intervals []interval
}

// loadTimeline walks the game's ordered intervals, accumulating game time.
// Malformed histories (more than one open interval, an open interval that is
// not last, an ended game with an open interval, no intervals at all) are
// corruption: the load fails hard and the game must not come up.
func loadTimeline(ctx context.Context, st GameStore, game store.Game, room Room, sc *sched.Scheduler, mu *sync.Mutex, now func() time.Time, canPause func(int64) bool) (*Timeline, error) {
	rows, err := st.ListIntervals(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("load intervals for game %s: %w", game.ID, err)
	}
	if len(rows) == 0 {
		return nil, corrupt(game.ID, game.Mode, "game has no play intervals")
	}

	t := &Timeline{
		gameID:   game.ID,
		modeTag:  game.Mode,
		store:    st,
		room:     room,
		sched:    sc,
		mu:       mu,
		now:      now,
		canPause: canPause,
	}

	var cum int64
	openSeen := false
	for _, r := range rows {
		if openSeen {
			return nil, corrupt(game.ID, game.Mode, "interval %s follows an open interval", r.ID)
		}
		iv := interval{id: r.ID, startedAt: r.StartedAt, startGameTime: cum}
		if r.EndedAt == nil {
			openSeen = true
		} else {
			if r.DurationSec == nil {
				return nil, corrupt(game.ID, game.Mode, "closed interval %s has no duration", r.ID)
			}
			iv.endedAt = r.EndedAt
			iv.endGameTime = cum + *r.DurationSec
			cum = iv.endGameTime
		}
		t.intervals = append(t.intervals, iv)
	}

	last := &t.intervals[len(t.intervals)-1]
	switch {
	case game.Ended:
		if openSeen {
			return nil, corrupt(game.ID, game.Mode, "ended game still has open interval %s", last.id)
		}
		t.phase = PhaseEnded
	case !openSeen:
		t.phase = PhasePaused
	case last.startedAt.After(now()):
		if len(t.intervals) != 1 {
			return nil, corrupt(game.ID, game.Mode, "future-start interval %s is not the game's only interval", last.id)
		}
		t.phase = PhaseNotStarted
		sc.ScheduleAt(last.startedAt, "game-start:"+game.ID, t.startFlip)
	default:
		t.phase = PhaseInProgress
	}
	return t, nil
}

// startFlip runs on the scheduler goroutine once the scheduled start instant
// passes. A no-op unless the game is still waiting to start.
func (t *Timeline) startFlip(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != PhaseNotStarted {
		return nil
	}
	t.phase = PhaseInProgress
	snap := t.StateSync()
	t.room.Broadcast("game_started", snap)
	log.Info().Str("game_id", t.gameID).Str("mode", t.modeTag).Int64("game_time", snap.GameTimeSec).Msg("game_started")
	return nil
}

func (t *Timeline) Phase() Phase {
	return t.phase
}

// GameTime returns the current virtual clock reading in seconds. While the
// clock is running it is derived from wall time against the open interval;
// while paused or ended it is frozen at the last closed interval's end.
func (t *Timeline) GameTime() int64 {
	switch t.phase {
	case PhaseNotStarted, PhaseInProgress:
		cur := &t.intervals[len(t.intervals)-1]
		elapsed := int64(math.Floor(t.now().Sub(cur.startedAt).Seconds()))
		return elapsed + cur.startGameTime
	default:
		for i := len(t.intervals) - 1; i >= 0; i-- {
			if !t.intervals[i].open() {
				return t.intervals[i].endGameTime
			}
		}
		return 0
	}
}

func (t *Timeline) StateSync() StateSync {
	return StateSync{
		GameTimeSec:   t.GameTime(),
		SyncInstantMS: t.now().UnixMilli(),
		Phase:         t.phase,
	}
}

// Pause closes the open interval at the current game time, persists the
// closure, and freezes the clock. Legal only from in_progress; the mode's
// pause gate can additionally veto it.
func (t *Timeline) Pause(ctx context.Context) error {
	if t.phase != PhaseInProgress {
		return userError("game_not_in_progress", "cannot pause while %s", t.phase)
	}
	gameTime := t.GameTime()
	if t.canPause != nil && !t.canPause(gameTime) {
		return userError("pause_not_allowed", "the %s mode does not allow pausing right now", t.modeTag)
	}
	cur := &t.intervals[len(t.intervals)-1]
	now := t.now()
	if err := t.store.CloseInterval(ctx, cur.id, now, gameTime-cur.startGameTime); err != nil {
		return fmt.Errorf("close interval %s: %w", cur.id, err)
	}
	cur.endedAt = &now
	cur.endGameTime = gameTime
	t.phase = PhasePaused
	snap := t.StateSync()
	t.room.Broadcast("game_paused", snap)
	log.Info().Str("game_id", t.gameID).Int64("game_time", snap.GameTimeSec).Msg("game_paused")
	return nil
}

// Resume opens and persists a new interval starting now, picking the clock
// up exactly where Pause froze it. Legal only from paused.
func (t *Timeline) Resume(ctx context.Context) error {
	if t.phase != PhasePaused {
		return userError("game_not_paused", "cannot resume while %s", t.phase)
	}
	now := t.now()
	id, err := t.store.InsertInterval(ctx, t.gameID, now)
	if err != nil {
		return fmt.Errorf("open interval for game %s: %w", t.gameID, err)
	}
	t.intervals = append(t.intervals, interval{
		id:            id,
		startedAt:     now,
		startGameTime: t.GameTime(),
	})
	t.phase = PhaseInProgress
	snap := t.StateSync()
	t.room.Broadcast("game_resumed", snap)
	log.Info().Str("game_id", t.gameID).Int64("game_time", snap.GameTimeSec).Msg("game_resumed")
	return nil
}

// ForceEnd closes any open interval and moves the timeline to its terminal
// phase. Used by administrative game termination; an ended game must never
// leave an open interval behind.
func (t *Timeline) ForceEnd(ctx context.Context) error {
	if t.phase == PhaseEnded {
		return nil
	}
	cur := &t.intervals[len(t.intervals)-1]
	if cur.open() {
		gameTime := t.GameTime()
		if gameTime < cur.startGameTime {
			// Terminated before the scheduled start.
			gameTime = cur.startGameTime
		}
		now := t.now()
		if err := t.store.CloseInterval(ctx, cur.id, now, gameTime-cur.startGameTime); err != nil {
			return fmt.Errorf("close interval %s: %w", cur.id, err)
		}
		cur.endedAt = &now
		cur.endGameTime = gameTime
	}
	t.phase = PhaseEnded
	snap := t.StateSync()
	t.room.Broadcast("game_ended", snap)
	log.Info().Str("game_id", t.gameID).Int64("game_time", snap.GameTimeSec).Msg("game_ended")
	return nil
}
