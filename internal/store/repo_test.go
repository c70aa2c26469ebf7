package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"field-games/internal/store"
	"field-games/internal/testutil"
)

func TestUsersEnsureAndGet(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := st.EnsureUser(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	// Upsert updates the display name in place.
	if err := st.EnsureUser(ctx, "alice", "Alice B."); err != nil {
		t.Fatalf("ensure user again: %v", err)
	}
	u, err := st.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.DisplayName != "Alice B." {
		t.Fatalf("expected updated display name, got %s", u.DisplayName)
	}

	_, err = st.GetUser(ctx, "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateGameOpensFirstInterval(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	startAt := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	id, err := st.CreateGame(ctx, "classic", startAt)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	g, err := st.GetGame(ctx, id)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if g.Mode != "classic" || g.Ended {
		t.Fatalf("unexpected game: %+v", g)
	}

	rows, err := st.ListIntervals(ctx, id)
	if err != nil {
		t.Fatalf("list intervals: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one interval, got %d", len(rows))
	}
	if rows[0].EndedAt != nil || rows[0].DurationSec != nil {
		t.Fatalf("first interval must be open, got %+v", rows[0])
	}
	if !rows[0].StartedAt.Equal(startAt) {
		t.Fatalf("expected start %s, got %s", startAt, rows[0].StartedAt)
	}
}

func TestIntervalLifecycle(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	startAt := time.Now().Add(-time.Minute).UTC()
	id, err := st.CreateGame(ctx, "classic", startAt)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	rows, _ := st.ListIntervals(ctx, id)

	endedAt := startAt.Add(40 * time.Second)
	if err := st.CloseInterval(ctx, rows[0].ID, endedAt, 40); err != nil {
		t.Fatalf("close interval: %v", err)
	}
	// Closing an already-closed interval hits zero rows.
	if err := st.CloseInterval(ctx, rows[0].ID, endedAt, 40); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double close, got %v", err)
	}

	if _, err := st.InsertInterval(ctx, id, endedAt.Add(30*time.Second)); err != nil {
		t.Fatalf("insert interval: %v", err)
	}
	rows, err = st.ListIntervals(ctx, id)
	if err != nil {
		t.Fatalf("list intervals: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(rows))
	}
	if rows[0].DurationSec == nil || *rows[0].DurationSec != 40 {
		t.Fatalf("expected first interval closed at 40s, got %+v", rows[0])
	}
	if rows[1].EndedAt != nil {
		t.Fatalf("second interval must be open, got %+v", rows[1])
	}
	if !rows[0].StartedAt.Before(rows[1].StartedAt) {
		t.Fatalf("intervals must come back in start order")
	}
}

func TestListOpenGamesSkipsEnded(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	aStart := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	aID, err := st.CreateGame(ctx, "classic", aStart)
	if err != nil {
		t.Fatalf("create game a: %v", err)
	}
	bID, err := st.CreateGame(ctx, "hideseek", time.Now().Add(2*time.Hour).UTC())
	if err != nil {
		t.Fatalf("create game b: %v", err)
	}
	if err := st.EndGame(ctx, bID); err != nil {
		t.Fatalf("end game b: %v", err)
	}

	games, err := st.ListOpenGames(ctx)
	if err != nil {
		t.Fatalf("list open games: %v", err)
	}
	if len(games) != 1 || games[0].ID != aID {
		t.Fatalf("expected only %s open, got %+v", aID, games)
	}
	if !games[0].FirstStartAt.Equal(aStart) {
		t.Fatalf("expected first start %s, got %s", aStart, games[0].FirstStartAt)
	}
}

func TestRosterAndLatestPosition(t *testing.T) {
	st, cleanup := testutil.OpenTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id, err := st.CreateGame(ctx, "classic", time.Now().UTC())
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := st.EnsureUser(ctx, "alice", "Alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := st.GrantAccess(ctx, id, "alice"); err != nil {
		t.Fatalf("grant access: %v", err)
	}
	// The grant is idempotent.
	if err := st.GrantAccess(ctx, id, "alice"); err != nil {
		t.Fatalf("repeat grant: %v", err)
	}

	roster, err := st.ListRoster(ctx, id)
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(roster) != 1 || roster[0].User.ID != "alice" {
		t.Fatalf("unexpected roster: %+v", roster)
	}
	if roster[0].LastLat != nil {
		t.Fatalf("no samples yet, expected no last position")
	}

	if err := st.InsertPositionSample(ctx, id, "alice", 52.5, 13.4, 10); err != nil {
		t.Fatalf("insert sample: %v", err)
	}
	if err := st.InsertPositionSample(ctx, id, "alice", 52.6, 13.5, 20); err != nil {
		t.Fatalf("insert sample: %v", err)
	}

	roster, err = st.ListRoster(ctx, id)
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	e := roster[0]
	if e.LastLat == nil || *e.LastLat != 52.6 || e.LastGameTimeSec == nil || *e.LastGameTimeSec != 20 {
		t.Fatalf("expected the newest sample, got %+v", e)
	}

	games, err := st.ListGamesForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list games for user: %v", err)
	}
	if len(games) != 1 || games[0].ID != id {
		t.Fatalf("expected alice's game, got %+v", games)
	}
	games, err = st.ListGamesForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list games for bob: %v", err)
	}
	if len(games) != 0 {
		t.Fatalf("bob has no games, got %+v", games)
	}
}
