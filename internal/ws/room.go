package ws

import (
	"sync"

	"field-games/internal/engine"
)

// room is the broadcast group for one game.
type room struct {
	mu    sync.Mutex
	conns map[engine.Conn]struct{}
}

func newRoom() *room {
	return &room{conns: map[engine.Conn]struct{}{}}
}

func (r *room) Join(c engine.Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

func (r *room) Leave(c engine.Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

func (r *room) Broadcast(event string, payload any) {
	r.mu.Lock()
	conns := make([]engine.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()
	for _, c := range conns {
		c.Send(event, payload)
	}
}

func (r *room) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]engine.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = map[engine.Conn]struct{}{}
	r.mu.Unlock()
	for _, c := range conns {
		c.Close(reason)
	}
}
