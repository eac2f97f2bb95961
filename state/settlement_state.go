package state

import (
	"time"

	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/network"
)

// SettlementState announces the outcome, archives it and sends the room
// back to the lobby, or tears it down when nobody is left.
type SettlementState struct {
	RoomStateBase
	match     *game.State
	outcome   game.Terminal
	startedAt time.Time
}

func NewSettlementState(room RoomContext, match *game.State, outcome game.Terminal, startedAt time.Time) *SettlementState {
	return &SettlementState{
		RoomStateBase: RoomStateBase{
			ID:   StateSettlement,
			Room: room,
		},
		match:     match,
		outcome:   outcome,
		startedAt: startedAt,
	}
}

func (s *SettlementState) OnEnter() {
	room := s.Room
	logger.Log.Infof("房间 %s 结束: %s, 胜者 %s", room.GetName(), s.outcome.Reason, s.winnerID())
	room.Monitor().IncMatchesFinished(s.outcome.Reason)

	// Seats of players who left are released before the rematch offer.
	for _, p := range s.match.Players {
		if !p.Active() {
			room.RemoveMember(p.ID)
		}
	}
	remaining := len(room.Members())

	msg := network.GameOverMsg{
		Type:       network.MsgGameOver,
		Reason:     s.outcome.Reason,
		CanRematch: remaining >= room.Rules().MinPlayers,
	}
	if w := s.outcome.Winner; w != nil {
		msg.Winner = w.Username
		msg.WinnerID = w.ID
	}
	for _, p := range s.match.Players {
		room.SendTo(p.ID, msg)
	}

	room.Archive(s.match, s.outcome, s.startedAt)
	room.DeleteSnapshot()

	if remaining == 0 {
		room.Destroy()
		return
	}
	room.ChangeState(NewLobbyState(room))
}

func (s *SettlementState) winnerID() string {
	if s.outcome.Winner == nil {
		return "-"
	}
	return s.outcome.Winner.ID
}
