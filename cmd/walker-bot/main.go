package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"field-games/internal/config"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Sync struct {
	GameTimeSec   int64  `json:"game_time_sec"`
	SyncInstantMS int64  `json:"sync_instant_ms"`
	Phase         string `json:"phase"`
}

type JoinData struct {
	GameID string `json:"game_id"`
	Mode   string `json:"mode"`
	Sync   Sync   `json:"sync"`
}

type Position struct {
	Type        string  `json:"type"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	GameTimeSec *int64  `json:"game_time_sec,omitempty"`
}

func main() {
	cfg, err := config.LoadBot()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.GameID == "" {
		log.Fatal("GAME_ID is required")
	}

	q := url.Values{}
	q.Set("user_id", cfg.UserID)
	q.Set("game_id", cfg.GameID)
	if cfg.WSToken != "" {
		q.Set("token", cfg.WSToken)
	}
	conn, _, err := websocket.DefaultDialer.Dial(cfg.WSURL+"?"+q.Encode(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	syncs := make(chan Sync, 8)
	go readLoop(conn, syncs)

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	lat := 52.52 + rnd.Float64()*0.01
	lng := 13.40 + rnd.Float64()*0.01

	var sync Sync
	haveSync := false
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case s, ok := <-syncs:
			if !ok {
				return
			}
			sync = s
			haveSync = true
		case <-ticker.C:
			if !haveSync || sync.Phase != "in_progress" {
				continue
			}
			lat += (rnd.Float64() - 0.5) * 0.0004
			lng += (rnd.Float64() - 0.5) * 0.0004
			gt := gameTimeNow(sync)
			pos := Position{Type: "position", Lat: lat, Lng: lng, GameTimeSec: &gt}
			payload, _ := json.Marshal(pos)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, syncs chan<- Sync) {
	defer close(syncs)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case "joined":
			var jd JoinData
			if err := json.Unmarshal(env.Data, &jd); err != nil {
				continue
			}
			syncs <- jd.Sync
		case "game_started", "game_paused", "game_resumed", "game_ended":
			var sync Sync
			if err := json.Unmarshal(env.Data, &sync); err != nil {
				continue
			}
			syncs <- sync
		case "error":
			log.Printf("server error: %s", string(env.Data))
		}
	}
}

// gameTimeNow extrapolates the virtual clock from the last sync point.
func gameTimeNow(s Sync) int64 {
	elapsed := time.Now().UnixMilli() - s.SyncInstantMS
	return s.GameTimeSec + elapsed/1000
}
