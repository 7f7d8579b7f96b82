package services

import (
	"errors"
	"fmt"
)

// Kind classifies an error so transport handlers can map it to a status
// code without inspecting individual sentinels.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindInvalidInput
	KindRateLimited
	KindTransient
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf walks the error chain and returns the first classified kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	ErrRoomNotFound   = E(KindNotFound, "room not found")
	ErrGameNotFound   = E(KindNotFound, "game not found")
	ErrPlayerNotFound = E(KindNotFound, "player not found")
	ErrNoPrompts      = E(KindNotFound, "no approved prompts for game")

	ErrRoomFull         = E(KindConflict, "room is full")
	ErrRoomNotJoinable  = E(KindConflict, "room is not accepting players")
	ErrRoomNotWaiting   = E(KindConflict, "room is not in the waiting state")
	ErrRoomNotPlaying   = E(KindConflict, "room is not in the playing state")
	ErrNoActiveRound    = E(KindConflict, "no round is currently active")
	ErrNotInReveal      = E(KindConflict, "round is not in the reveal phase")
	ErrNotEnoughPlayers = E(KindConflict, "not enough connected players to start")
	ErrCodeExhausted    = E(KindConflict, "room code space exhausted")
	ErrDisplayNameTaken = E(KindConflict, "display name already taken in room")

	ErrNotHost          = E(KindForbidden, "only the host may perform this action")
	ErrPasswordRequired = E(KindForbidden, "room requires a password")
	ErrInvalidPassword  = E(KindForbidden, "invalid room password")

	ErrInvalidTeam     = E(KindInvalidInput, "invalid team")
	ErrInvalidSettings = E(KindInvalidInput, "room settings out of bounds")
	ErrGameNotPlayable = E(KindInvalidInput, "game is not playable online")
	ErrEmptyName       = E(KindInvalidInput, "display name must not be empty")

	ErrRateLimited = E(KindRateLimited, "too many password attempts")
)

// transient wraps a store or cache failure so the caller knows a retry may
// succeed.
func transient(op string, err error) error {
	return Wrap(KindTransient, op, err)
}
