package mode

import (
	"context"

	"field-games/internal/engine"
)

// classic is open play: everyone sees everyone else's positions and the game
// can always be paused.
type classic struct{}

func (classic) Tag() string { return TagClassic }

func (classic) OnStart(context.Context, *engine.GameServer) error { return nil }

func (classic) OnStop(context.Context, *engine.GameServer) error { return nil }

func (classic) OnUserAccessGranted(context.Context, *engine.GameServer, string) error { return nil }

func (classic) CanPause(int64) bool { return true }

func (classic) PositionRecipients(from *engine.Player, roster []*engine.Player) []*engine.Player {
	out := make([]*engine.Player, 0, len(roster))
	for _, p := range roster {
		if p != from {
			out = append(out, p)
		}
	}
	return out
}
