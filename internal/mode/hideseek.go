package mode

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog/log"

	"field-games/internal/engine"
)

// hidingWindowSec is the opening stretch during which hiders scatter; the
// game cannot be paused until it has elapsed.
const hidingWindowSec = 60

// hideSeek splits players into seekers and hiders by a stable hash of their
// user id. Seeker positions fan out to everyone; hider positions only to
// fellow hiders.
type hideSeek struct{}

func (hideSeek) Tag() string { return TagHideSeek }

func (hideSeek) OnStart(_ context.Context, g *engine.GameServer) error {
	log.Info().Str("game_id", g.Game().ID).Msg("hide-and-seek teams assigned")
	return nil
}

func (hideSeek) OnStop(context.Context, *engine.GameServer) error { return nil }

func (hideSeek) OnUserAccessGranted(_ context.Context, g *engine.GameServer, userID string) error {
	log.Info().
		Str("game_id", g.Game().ID).
		Str("user_id", userID).
		Bool("seeker", isSeeker(userID)).
		Msg("hide-and-seek player assigned")
	return nil
}

func (hideSeek) CanPause(gameTimeSec int64) bool {
	return gameTimeSec >= hidingWindowSec
}

func (hideSeek) PositionRecipients(from *engine.Player, roster []*engine.Player) []*engine.Player {
	fromSeeker := isSeeker(from.User.ID)
	out := []*engine.Player{}
	for _, p := range roster {
		if p == from {
			continue
		}
		if fromSeeker || !isSeeker(p.User.ID) {
			out = append(out, p)
		}
	}
	return out
}

func isSeeker(userID string) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32()%2 == 0
}
