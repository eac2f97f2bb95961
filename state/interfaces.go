// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/monitor"
)

// Member is a verified identity that joined the room.
type Member struct {
	ID       string
	Username string
}

func (m Member) GetID() string { return m.ID }

// RoomContext is what a room exposes to its lifecycle states. Every call is
// made from the room's serialized loop.
type RoomContext interface {
	GetName() string
	Members() []Member
	Member(id string) (Member, bool)
	AddMember(m Member)
	// RemoveMember also drops the member's ready vote and hands the host
	// role to the next member in join order.
	RemoveMember(id string)
	HostID() string
	IsReady(id string) bool
	SetReady(id string, ready bool)
	ReadyCount() int
	ClearReady()

	Rules() game.Rules
	TurnDuration() time.Duration
	NewDeck() []domino.Tile
	Now() time.Time

	ChangeState(newState State) error
	SendTo(userID string, msg any)
	Broadcast(msg any)
	BroadcastRoomState()
	SendRoomState(userID string)

	// ArmTurnTimer replaces any pending turn timer. fn runs inside the
	// room loop and never after CancelTurnTimer or a later ArmTurnTimer;
	// its error is handled like a rejected action.
	ArmTurnTimer(d time.Duration, fn func() error)
	CancelTurnTimer()

	SaveSnapshot(match *game.State)
	DeleteSnapshot()
	Archive(match *game.State, outcome game.Terminal, startedAt time.Time)
	Monitor() *monitor.Monitor
	Destroy()
}
