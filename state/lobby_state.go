package state

import (
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/network"
)

// LobbyState collects members and ready votes until a match can start.
type LobbyState struct {
	RoomStateBase
}

func NewLobbyState(room RoomContext) *LobbyState {
	return &LobbyState{
		RoomStateBase: RoomStateBase{
			ID:   StateLobby,
			Room: room,
		},
	}
}

func (s *LobbyState) OnEnter() {
	s.Room.ClearReady()
	if len(s.Room.Members()) == 0 {
		return
	}
	s.Room.BroadcastRoomState()
}

func (s *LobbyState) HandleJoin(m Member) error {
	if _, ok := s.Room.Member(m.ID); ok {
		return nil
	}
	if len(s.Room.Members()) >= s.Room.Rules().MaxPlayers {
		return ErrRoomFull
	}
	s.Room.AddMember(m)
	logger.Log.Infof("房间 %s: %s 加入 (%d/%d)", s.Room.GetName(), m.ID, len(s.Room.Members()), s.Room.Rules().MaxPlayers)
	s.Room.BroadcastRoomState()
	return nil
}

// HandleAction only accepts members; a released seat whose connection is
// still attached gets ErrPlayerNotInMatch.
func (s *LobbyState) HandleAction(m Member, action network.Action) error {
	if _, ok := s.Room.Member(m.ID); !ok {
		return game.ErrPlayerNotInMatch
	}
	switch action.(type) {
	case network.PlayerReady:
		s.Room.SetReady(m.ID, !s.Room.IsReady(m.ID))
		members := len(s.Room.Members())
		if s.Room.ReadyCount() == members && members == s.Room.Rules().MaxPlayers {
			return s.start()
		}
		s.Room.BroadcastRoomState()
		return nil
	case network.StartGame:
		if m.ID != s.Room.HostID() {
			return ErrNotHost
		}
		if s.Room.ReadyCount() != len(s.Room.Members()) {
			return ErrNotAllReady
		}
		return s.start()
	case network.LeaveGame:
		return s.HandleDisconnect(m, false)
	default:
		return ErrNoMatch
	}
}

// HandleDisconnect drops the member; there is no match to keep a seat in.
func (s *LobbyState) HandleDisconnect(m Member, forced bool) error {
	if _, ok := s.Room.Member(m.ID); !ok {
		return nil
	}
	s.Room.RemoveMember(m.ID)
	logger.Log.Infof("房间 %s: %s 离开 (forced=%v)", s.Room.GetName(), m.ID, forced)
	if len(s.Room.Members()) == 0 {
		s.Room.Destroy()
		return nil
	}
	s.Room.BroadcastRoomState()
	return nil
}

func (s *LobbyState) start() error {
	members := s.Room.Members()
	players := make([]game.Player, len(members))
	for i, m := range members {
		players[i] = game.Player{ID: m.ID, Username: m.Username}
	}

	res, err := game.Deal(players, s.Room.NewDeck(), s.Room.Rules())
	if err != nil {
		return err
	}
	return s.Room.ChangeState(NewPlayingState(s.Room, res))
}
