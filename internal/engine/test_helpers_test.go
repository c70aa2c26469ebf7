package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"field-games/internal/store"
)

// testClock is a settable wall clock shared by a test and the code under it.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type positionRow struct {
	GameID      string
	UserID      string
	Lat, Lng    float64
	GameTimeSec int64
}

// fakeStore is an in-memory GameStore. All methods are safe for concurrent
// use; game server startup and batch activation hit it from several
// goroutines.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	gameOrder []string
	games     map[string]*store.Game
	intervals map[string][]store.PlayInterval
	users     map[string]*store.User
	roster    map[string][]string
	samples   []positionRow

	listRosterErr error
	// rosterGate, when set, blocks ListRoster until the channel is closed;
	// lets tests hold a game server mid-start.
	rosterGate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:     map[string]*store.Game{},
		intervals: map[string][]store.PlayInterval{},
		users:     map[string]*store.User{},
		roster:    map[string][]string{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeStore) addUser(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &store.User{ID: id, DisplayName: name}
}

// addGame seeds a game whose first interval starts at startAt and is open.
func (f *fakeStore) addGame(mode string, startAt time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("g")
	f.games[id] = &store.Game{ID: id, Mode: mode, CreatedAt: startAt}
	f.gameOrder = append(f.gameOrder, id)
	f.intervals[id] = []store.PlayInterval{{ID: f.nextID("iv"), GameID: id, StartedAt: startAt}}
	return id
}

func (f *fakeStore) setIntervals(gameID string, rows []store.PlayInterval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervals[gameID] = rows
}

func (f *fakeStore) grant(gameID string, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		f.roster[gameID] = append(f.roster[gameID], id)
	}
}

func (f *fakeStore) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeStore) lastSample() positionRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples[len(f.samples)-1]
}

func (f *fakeStore) intervalRows(gameID string) []store.PlayInterval {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.PlayInterval, len(f.intervals[gameID]))
	copy(out, f.intervals[gameID])
	return out
}

func (f *fakeStore) GetGame(_ context.Context, id string) (*store.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) CreateGame(_ context.Context, mode string, startAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("g")
	f.games[id] = &store.Game{ID: id, Mode: mode, CreatedAt: startAt}
	f.gameOrder = append(f.gameOrder, id)
	f.intervals[id] = []store.PlayInterval{{ID: f.nextID("iv"), GameID: id, StartedAt: startAt}}
	return id, nil
}

func (f *fakeStore) EndGame(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return store.ErrNotFound
	}
	g.Ended = true
	return nil
}

func (f *fakeStore) ListOpenGames(context.Context) ([]store.GameWithStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.GameWithStart{}
	for _, id := range f.gameOrder {
		g := f.games[id]
		if g.Ended {
			continue
		}
		gw := store.GameWithStart{Game: *g}
		if rows := f.intervals[id]; len(rows) > 0 {
			gw.FirstStartAt = rows[0].StartedAt
		}
		out = append(out, gw)
	}
	return out, nil
}

func (f *fakeStore) ListGamesForUser(_ context.Context, userID string) ([]store.GameWithStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.GameWithStart{}
	for _, id := range f.gameOrder {
		g := f.games[id]
		if g.Ended {
			continue
		}
		granted := false
		for _, uid := range f.roster[id] {
			if uid == userID {
				granted = true
				break
			}
		}
		if !granted {
			continue
		}
		gw := store.GameWithStart{Game: *g}
		if rows := f.intervals[id]; len(rows) > 0 {
			gw.FirstStartAt = rows[0].StartedAt
		}
		out = append(out, gw)
	}
	return out, nil
}

func (f *fakeStore) ListIntervals(_ context.Context, gameID string) ([]store.PlayInterval, error) {
	return f.intervalRows(gameID), nil
}

func (f *fakeStore) InsertInterval(_ context.Context, gameID string, startAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("iv")
	f.intervals[gameID] = append(f.intervals[gameID], store.PlayInterval{ID: id, GameID: gameID, StartedAt: startAt})
	return id, nil
}

func (f *fakeStore) CloseInterval(_ context.Context, intervalID string, endedAt time.Time, durationSec int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for gameID, rows := range f.intervals {
		for i := range rows {
			if rows[i].ID == intervalID && rows[i].EndedAt == nil {
				end := endedAt
				dur := durationSec
				rows[i].EndedAt = &end
				rows[i].DurationSec = &dur
				f.intervals[gameID] = rows
				return nil
			}
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GrantAccess(_ context.Context, gameID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uid := range f.roster[gameID] {
		if uid == userID {
			return nil
		}
	}
	f.roster[gameID] = append(f.roster[gameID], userID)
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) ListRoster(_ context.Context, gameID string) ([]store.RosterEntry, error) {
	f.mu.Lock()
	gate := f.rosterGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listRosterErr != nil {
		return nil, f.listRosterErr
	}
	out := []store.RosterEntry{}
	for _, uid := range f.roster[gameID] {
		u, ok := f.users[uid]
		if !ok {
			u = &store.User{ID: uid}
		}
		entry := store.RosterEntry{User: *u}
		for i := len(f.samples) - 1; i >= 0; i-- {
			s := f.samples[i]
			if s.GameID == gameID && s.UserID == uid {
				lat, lng, gt := s.Lat, s.Lng, s.GameTimeSec
				entry.LastLat, entry.LastLng, entry.LastGameTimeSec = &lat, &lng, &gt
				break
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *fakeStore) InsertPositionSample(_ context.Context, gameID, userID string, lat, lng float64, gameTimeSec int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, positionRow{GameID: gameID, UserID: userID, Lat: lat, Lng: lng, GameTimeSec: gameTimeSec})
	return nil
}

type roomEvent struct {
	Event   string
	Payload any
}

type fakeRoom struct {
	mu        sync.Mutex
	conns     []Conn
	events    []roomEvent
	closedAll []string
}

func (r *fakeRoom) Join(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns = append(r.conns, c)
}

func (r *fakeRoom) Leave(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, have := range r.conns {
		if have == c {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

func (r *fakeRoom) Broadcast(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, roomEvent{Event: event, Payload: payload})
}

func (r *fakeRoom) CloseAll(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closedAll = append(r.closedAll, reason)
}

func (r *fakeRoom) broadcasts(event string) []roomEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []roomEvent{}
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[string]*fakeRoom
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: map[string]*fakeRoom{}}
}

func (f *fakeRooms) Room(gameID string) Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[gameID]
	if !ok {
		r = &fakeRoom{}
		f.rooms[gameID] = r
	}
	return r
}

func (f *fakeRooms) room(gameID string) *fakeRoom {
	return f.Room(gameID).(*fakeRoom)
}

type sentEvent struct {
	Event   string
	Payload any
}

type fakeConn struct {
	userID string

	mu     sync.Mutex
	sends  []sentEvent
	closes []string
}

func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sentEvent{Event: event, Payload: payload})
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, reason)
}

func (c *fakeConn) sent(event string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []sentEvent{}
	for _, e := range c.sends {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) closeReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.closes...)
}

// fakeMode lets tests override the pause gate and the recipient set; the
// defaults are classic-like (pause always allowed, fan out to everyone else).
type fakeMode struct {
	tag        string
	canPause   func(int64) bool
	recipients func(from *Player, roster []*Player) []*Player
	startErr   error

	mu           sync.Mutex
	starts       int
	stops        int
	accessGrants []string
}

func (m *fakeMode) Tag() string { return m.tag }

func (m *fakeMode) OnStart(context.Context, *GameServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *fakeMode) OnStop(context.Context, *GameServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *fakeMode) OnUserAccessGranted(_ context.Context, _ *GameServer, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessGrants = append(m.accessGrants, userID)
	return nil
}

func (m *fakeMode) CanPause(gameTimeSec int64) bool {
	if m.canPause == nil {
		return true
	}
	return m.canPause(gameTimeSec)
}

func (m *fakeMode) PositionRecipients(from *Player, roster []*Player) []*Player {
	if m.recipients != nil {
		return m.recipients(from, roster)
	}
	out := []*Player{}
	for _, p := range roster {
		if p != from {
			out = append(out, p)
		}
	}
	return out
}

func testModeFactory(tag string) (Mode, error) {
	if tag == "bogus" {
		return nil, fmt.Errorf("no mode %q", tag)
	}
	return &fakeMode{tag: tag}, nil
}

func newTestOrchestrator(t *testing.T, st *fakeStore, clk *testClock) (*Orchestrator, *fakeRooms) {
	t.Helper()
	rooms := newFakeRooms()
	o, err := NewOrchestrator(Options{
		Store:             st,
		Rooms:             rooms,
		Modes:             testModeFactory,
		LeadTime:          time.Minute,
		StaleThresholdSec: 30,
	})
	if err != nil {
		t.Fatalf("newOrchestrator: %v", err)
	}
	if clk != nil {
		o.now = clk.Now
	}
	t.Cleanup(o.sched.Clear)
	return o, rooms
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func requireUserError(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !IsUserError(err) {
		t.Fatalf("expected user error %s, got %v", code, err)
	}
	if got := UserErrorCode(err); got != code {
		t.Fatalf("expected error code %s, got %s (%v)", code, got, err)
	}
}
