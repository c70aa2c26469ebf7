package engine

import (
	"field-games/internal/store"
)

// Player is the per-game runtime record for one user: last known position,
// the game time it was recorded at, and the currently bound connection.
// A player with no bound connection is offline but stays on the roster.
// Fields are guarded by the owning GameServer's mutex.
type Player struct {
	User store.User

	pos          Coordinates
	hasFix       bool
	lastGameTime int64
	conn         Conn
}

func newPlayer(e store.RosterEntry) *Player {
	p := &Player{User: e.User}
	if e.LastLat != nil && e.LastLng != nil {
		p.pos = Coordinates{Lat: *e.LastLat, Lng: *e.LastLng}
		p.hasFix = true
		if e.LastGameTimeSec != nil {
			p.lastGameTime = *e.LastGameTimeSec
		}
	}
	return p
}

func (p *Player) Online() bool {
	return p.conn != nil
}

// PlayerSnapshot is the roster view sent in the join snapshot and in lobby
// projections.
type PlayerSnapshot struct {
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Position    Coordinates `json:"position"`
	HasFix      bool        `json:"has_fix"`
	GameTimeSec int64       `json:"game_time_sec"`
	Online      bool        `json:"online"`
	Stale       bool        `json:"stale"`
}

// snapshot derives the staleness flag instead of storing it: a position is
// stale once it has not refreshed for staleThresholdSec of game time.
func (p *Player) snapshot(gameTimeSec, staleThresholdSec int64) PlayerSnapshot {
	return PlayerSnapshot{
		UserID:      p.User.ID,
		DisplayName: p.User.DisplayName,
		Position:    p.pos,
		HasFix:      p.hasFix,
		GameTimeSec: p.lastGameTime,
		Online:      p.Online(),
		Stale:       p.hasFix && gameTimeSec-p.lastGameTime >= staleThresholdSec,
	}
}

// PositionEvent is the fanout payload for one player's position update.
type PositionEvent struct {
	UserID      string      `json:"user_id"`
	Position    Coordinates `json:"position"`
	GameTimeSec int64       `json:"game_time_sec"`
}

// PresenceEvent announces a player going online or offline.
type PresenceEvent struct {
	UserID string `json:"user_id"`
}
