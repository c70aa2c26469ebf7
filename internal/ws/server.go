// Package ws is the realtime layer: gorilla/websocket connections grouped
// into per-game rooms. Authentication happens upstream; this package only
// consumes already-validated {user_id, game_id} pairs.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"field-games/internal/engine"
)

type Server struct {
	upgrader websocket.Upgrader
	orch     *engine.Orchestrator

	mu    sync.Mutex
	rooms map[string]*room
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		rooms:    map[string]*room{},
	}
}

// AttachOrchestrator wires the orchestrator in after construction; the
// orchestrator itself is built with this server as its Rooms provider.
func (s *Server) AttachOrchestrator(o *engine.Orchestrator) {
	s.orch = o
}

// Room returns the broadcast group for a game, creating it on demand.
// Satisfies engine.Rooms.
func (s *Server) Room(gameID string) engine.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[gameID]
	if !ok {
		r = newRoom()
		s.rooms[gameID] = r
	}
	return r
}

// HandleConn upgrades the request and binds the connection to its player.
// userID and gameID must already be validated by the caller.
func (s *Server) HandleConn(w http.ResponseWriter, r *http.Request, userID, gameID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16), userID: userID, gameID: gameID}
	go c.writeLoop()

	if err := s.orch.Bind(r.Context(), gameID, c); err != nil {
		c.Send("error", ErrorEvent{Code: engine.UserErrorCode(err), Message: err.Error()})
		c.Close("bind_rejected")
		return
	}
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.orch.HandleDisconnect(c.gameID, c)
		c.Close("connection_closed")
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		switch base.Type {
		case "position":
			var pos PositionMessage
			if err := json.Unmarshal(msg, &pos); err != nil {
				c.Send("error", ErrorEvent{Code: "invalid_json", Message: "malformed position message"})
				continue
			}
			coords := engine.Coordinates{Lat: pos.Lat, Lng: pos.Lng}
			err := s.orch.UpdatePosition(context.Background(), c.gameID, c.userID, coords, pos.GameTimeSec)
			switch {
			case err == nil:
			case engine.IsCorruption(err):
				// Ordering violations are fatal for this connection, not a
				// soft reject.
				log.Error().Str("game_id", c.gameID).Str("user_id", c.userID).Err(err).Msg("position update corrupt")
				c.Send("error", ErrorEvent{Code: "position_out_of_order", Message: err.Error()})
				c.Close("position_out_of_order")
				return
			case engine.IsUserError(err):
				c.Send("error", ErrorEvent{Code: engine.UserErrorCode(err), Message: err.Error()})
			default:
				log.Error().Str("game_id", c.gameID).Str("user_id", c.userID).Err(err).Msg("position update failed")
				c.Send("error", ErrorEvent{Code: "internal_error", Message: "position update failed"})
			}
		}
	}
}

// client implements engine.Conn over one websocket connection, with a
// buffered send channel drained by a dedicated write loop.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	gameID string
	once   sync.Once
}

func (c *client) UserID() string {
	return c.userID
}

func (c *client) Send(event string, payload any) {
	msg, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		log.Error().Str("event", event).Err(err).Msg("marshal ws event")
		return
	}
	safeSend(c.send, msg)
}

func (c *client) Close(reason string) {
	c.once.Do(func() {
		msg, _ := json.Marshal(envelope{Type: "disconnect", Data: map[string]string{"reason": reason}})
		safeSend(c.send, msg)
		safeClose(c.send)
	})
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = c.conn.Close()
}

func safeSend(ch chan []byte, msg []byte) {
	defer func() {
		_ = recover()
	}()
	ch <- msg
}

func safeClose(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}
