package game

import "errors"

var (
	ErrNotYourTurn        = errors.New("it is not your turn")
	ErrTileNotHeld        = errors.New("you do not hold that tile")
	ErrIllegalMove        = errors.New("that tile does not fit any open end")
	ErrBoneyardEmpty      = errors.New("the boneyard is empty")
	ErrMustPlay           = errors.New("you hold a playable tile")
	ErrPlayerNotInMatch   = errors.New("you are not playing in this match")
	ErrPlayerDisconnected = errors.New("you are disconnected, reconnect to keep playing")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrTooManyPlayers     = errors.New("too many players for one set")
	ErrInvariant          = errors.New("match invariant violated")
)
