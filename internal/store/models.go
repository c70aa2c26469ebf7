package store

import "time"

type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type Game struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Ended     bool      `json:"ended"`
	CreatedAt time.Time `json:"created_at"`
}

// GameWithStart carries a game plus the start instant of its earliest play
// interval, which is the game's scheduled start.
type GameWithStart struct {
	Game
	FirstStartAt time.Time `json:"first_start_at"`
}

// PlayInterval is one contiguous stretch of in-progress time. An open
// interval has a NULL ended_at and NULL duration_sec.
type PlayInterval struct {
	ID          string
	GameID      string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationSec *int64
}

// RosterEntry is a user with access to a game plus their most recent
// persisted position, if any.
type RosterEntry struct {
	User            User
	LastLat         *float64
	LastLng         *float64
	LastGameTimeSec *int64
}

type PositionSample struct {
	ID          string
	GameID      string
	UserID      string
	Lat         float64
	Lng         float64
	GameTimeSec int64
	CreatedAt   time.Time
}
