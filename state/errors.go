package state

import "errors"

var (
	ErrRoomFull        = errors.New("the room is full")
	ErrNotHost         = errors.New("only the host can start the match")
	ErrNotAllReady     = errors.New("not every player is ready")
	ErrMatchInProgress = errors.New("a match is already in progress in this room")
	ErrNoMatch         = errors.New("the match has not started yet")
)
