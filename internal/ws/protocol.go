package ws

// Outbound messages are enveloped: {"type": ..., "data": ...}. The data
// payloads come from the engine (join snapshot, state sync, position and
// presence events).
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// PositionMessage is the only inbound message: one position fix, optionally
// stamped with the client's view of game time.
type PositionMessage struct {
	Type        string  `json:"type"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	GameTimeSec *int64  `json:"game_time_sec,omitempty"`
}

// ErrorEvent is sent to a single connection when its request is rejected;
// it is never broadcast.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
