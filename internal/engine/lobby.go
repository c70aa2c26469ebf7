package engine

import (
	"context"
	"fmt"
	"time"
)

// LobbyEntry is the per-game projection shown to a user. Games without a
// live runtime are reported with a zeroed not_started timeline and zero
// players, never omitted.
type LobbyEntry struct {
	GameID      string    `json:"game_id"`
	Mode        string    `json:"mode"`
	StartAt     time.Time `json:"start_at"`
	Live        bool      `json:"live"`
	Sync        StateSync `json:"sync"`
	PlayerCount int       `json:"player_count"`
	OnlineCount int       `json:"online_count"`
}

// JoinAdvert is the minimal card advertising a joinable game.
type JoinAdvert struct {
	GameID   string    `json:"game_id"`
	Mode     string    `json:"mode"`
	StartAt  time.Time `json:"start_at"`
	Joinable bool      `json:"joinable"`
}

// LobbyForUser projects every non-ended game the user has access to.
func (o *Orchestrator) LobbyForUser(ctx context.Context, userID string) ([]LobbyEntry, error) {
	games, err := o.store.ListGamesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list games for user %s: %w", userID, err)
	}
	out := []LobbyEntry{}
	for _, g := range games {
		entry := LobbyEntry{
			GameID:  g.ID,
			Mode:    g.Mode,
			StartAt: g.FirstStartAt,
			Sync: StateSync{
				SyncInstantMS: o.now().UnixMilli(),
				Phase:         PhaseNotStarted,
			},
		}
		o.mu.Lock()
		gs, live := o.live.Get(g.ID)
		o.mu.Unlock()
		if live {
			entry.Live = true
			entry.Sync = gs.StateSync()
			entry.PlayerCount, entry.OnlineCount = gs.LobbyCounts()
		}
		out = append(out, entry)
	}
	return out, nil
}

// JoinAdvertsForUser lists the user's accessible games as join cards; only
// games with a live runtime are joinable right now.
func (o *Orchestrator) JoinAdvertsForUser(ctx context.Context, userID string) ([]JoinAdvert, error) {
	games, err := o.store.ListGamesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list games for user %s: %w", userID, err)
	}
	out := []JoinAdvert{}
	for _, g := range games {
		o.mu.Lock()
		_, live := o.live.Get(g.ID)
		o.mu.Unlock()
		out = append(out, JoinAdvert{
			GameID:   g.ID,
			Mode:     g.Mode,
			StartAt:  g.FirstStartAt,
			Joinable: live,
		})
	}
	return out, nil
}
