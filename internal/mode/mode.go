// Package mode holds the concrete game-mode implementations behind the
// engine's Mode extension point, selected by tag.
package mode

import (
	"fmt"

	"field-games/internal/engine"
)

const (
	TagClassic  = "classic"
	TagHideSeek = "hideseek"
)

// Factory resolves a mode tag. It satisfies engine.ModeFactory.
func Factory(tag string) (engine.Mode, error) {
	switch tag {
	case TagClassic:
		return classic{}, nil
	case TagHideSeek:
		return hideSeek{}, nil
	default:
		return nil, fmt.Errorf("unknown game mode %q", tag)
	}
}
