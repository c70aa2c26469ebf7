package engine

import (
	"errors"
	"fmt"
)

// UserError is a rejected operation: bad input or an illegal phase
// transition. It carries a stable snake_case code for clients and a
// human-readable message. User errors never crash anything.
type UserError struct {
	Code    string
	Message string
}

func (e *UserError) Error() string {
	return e.Code + ": " + e.Message
}

func userError(code, format string, args ...any) *UserError {
	return &UserError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err is (or wraps) a rejected-operation error.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// UserErrorCode returns the code for a user error, or "internal_error".
func UserErrorCode(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return "internal_error"
}

// CorruptionError marks persisted or runtime state that violates the
// engine's invariants. Fatal for the affected game only: the game's runtime
// must not come up (or keep running) on top of it, but unrelated games are
// untouched.
type CorruptionError struct {
	GameID string
	Mode   string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("game %s (%s): corrupt state: %v", e.GameID, e.Mode, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

func corrupt(gameID, mode, format string, args ...any) *CorruptionError {
	return &CorruptionError{GameID: gameID, Mode: mode, Err: fmt.Errorf(format, args...)}
}

// IsCorruption reports whether err is (or wraps) a corruption error.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
