package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("not found")

// Store wraps DB access.
type Store struct {
	DB *sql.DB
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() {
	if s.DB != nil {
		_ = s.DB.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.DB.PingContext(ctx)
}

func (s *Store) EnsureUser(ctx context.Context, id, displayName string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, display_name) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, id, displayName)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, display_name, created_at FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateGame persists a new game together with its first play interval in one
// transaction. The interval is open and starts at startAt, which may be in
// the future.
func (s *Store) CreateGame(ctx context.Context, mode string, startAt time.Time) (string, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	gameID := NewID()
	if _, err := tx.ExecContext(ctx, `INSERT INTO games (id, mode, ended) VALUES ($1,$2,false)`, gameID, mode); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO play_intervals (id, game_id, started_at) VALUES ($1,$2,$3)`, NewID(), gameID, startAt); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return gameID, nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*Game, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id, mode, ended, created_at FROM games WHERE id = $1`, id)
	var g Game
	if err := row.Scan(&g.ID, &g.Mode, &g.Ended, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) EndGame(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE games SET ended = true WHERE id = $1`, id)
	return err
}

// ListOpenGames returns every non-ended game with the start instant of its
// earliest interval.
func (s *Store) ListOpenGames(ctx context.Context) ([]GameWithStart, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT g.id, g.mode, g.ended, g.created_at, MIN(pi.started_at) AS first_start
		FROM games g
		JOIN play_intervals pi ON pi.game_id = g.id
		WHERE NOT g.ended
		GROUP BY g.id, g.mode, g.ended, g.created_at
		ORDER BY first_start ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []GameWithStart{}
	for rows.Next() {
		var g GameWithStart
		if err := rows.Scan(&g.ID, &g.Mode, &g.Ended, &g.CreatedAt, &g.FirstStartAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGamesForUser returns the non-ended games a user has access to.
func (s *Store) ListGamesForUser(ctx context.Context, userID string) ([]GameWithStart, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT g.id, g.mode, g.ended, g.created_at, MIN(pi.started_at) AS first_start
		FROM games g
		JOIN game_players gp ON gp.game_id = g.id AND gp.user_id = $1
		JOIN play_intervals pi ON pi.game_id = g.id
		WHERE NOT g.ended
		GROUP BY g.id, g.mode, g.ended, g.created_at
		ORDER BY first_start ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []GameWithStart{}
	for rows.Next() {
		var g GameWithStart
		if err := rows.Scan(&g.ID, &g.Mode, &g.Ended, &g.CreatedAt, &g.FirstStartAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListIntervals returns a game's play intervals ordered by start instant.
func (s *Store) ListIntervals(ctx context.Context, gameID string) ([]PlayInterval, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, game_id, started_at, ended_at, duration_sec
		FROM play_intervals WHERE game_id = $1 ORDER BY started_at ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PlayInterval{}
	for rows.Next() {
		var pi PlayInterval
		if err := rows.Scan(&pi.ID, &pi.GameID, &pi.StartedAt, &pi.EndedAt, &pi.DurationSec); err != nil {
			return nil, err
		}
		out = append(out, pi)
	}
	return out, rows.Err()
}

func (s *Store) InsertInterval(ctx context.Context, gameID string, startAt time.Time) (string, error) {
	id := NewID()
	_, err := s.DB.ExecContext(ctx, `INSERT INTO play_intervals (id, game_id, started_at) VALUES ($1,$2,$3)`, id, gameID, startAt)
	return id, err
}

func (s *Store) CloseInterval(ctx context.Context, intervalID string, endedAt time.Time, durationSec int64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE play_intervals SET ended_at = $1, duration_sec = $2
		WHERE id = $3 AND ended_at IS NULL
	`, endedAt, durationSec, intervalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GrantAccess(ctx context.Context, gameID, userID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO game_players (game_id, user_id) VALUES ($1,$2)
		ON CONFLICT (game_id, user_id) DO NOTHING
	`, gameID, userID)
	return err
}

// ListRoster returns every user with access to a game plus their most recent
// position sample, when one exists.
func (s *Store) ListRoster(ctx context.Context, gameID string) ([]RosterEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT u.id, u.display_name, u.created_at, ps.lat, ps.lng, ps.game_time_sec
		FROM game_players gp
		JOIN users u ON u.id = gp.user_id
		LEFT JOIN LATERAL (
			SELECT lat, lng, game_time_sec FROM position_samples
			WHERE game_id = gp.game_id AND user_id = gp.user_id
			ORDER BY created_at DESC, id DESC LIMIT 1
		) ps ON true
		WHERE gp.game_id = $1
		ORDER BY gp.created_at ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RosterEntry{}
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.User.ID, &e.User.DisplayName, &e.User.CreatedAt, &e.LastLat, &e.LastLng, &e.LastGameTimeSec); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertPositionSample(ctx context.Context, gameID, userID string, lat, lng float64, gameTimeSec int64) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO position_samples (id, game_id, user_id, lat, lng, game_time_sec)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, NewID(), gameID, userID, lat, lng, gameTimeSec)
	return err
}
