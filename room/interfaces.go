package room

import (
	"time"

	"github.com/wfunc/dominoserver/game"
)

// Broadcaster defines how a room reaches its members and the lobby.
// broadcast.SessionBroadcaster and broadcast.RedisRelay both satisfy it.
type Broadcaster interface {
	SendToUser(roomName, userID string, msg any) error
	BroadcastToRoom(roomName string, userIDs []string, msg any) error
	BroadcastToLobby(msg any) error
}

// Archiver receives finished matches. It must not block the room.
type Archiver interface {
	ArchiveMatch(room string, match *game.State, outcome game.Terminal, startedAt, endedAt time.Time)
}
