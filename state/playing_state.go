package state

import (
	"fmt"
	"time"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/network"
)

// PlayingState owns the live match. Every mutation goes through apply.
type PlayingState struct {
	RoomStateBase
	match     *game.State
	dealt     *game.Result
	startedAt time.Time
	deadline  time.Time
}

func NewPlayingState(room RoomContext, dealt *game.Result) *PlayingState {
	return &PlayingState{
		RoomStateBase: RoomStateBase{
			ID:   StatePlaying,
			Room: room,
		},
		match: dealt.State,
		dealt: dealt,
	}
}

// Match returns the current match state. Read it from the room loop only.
func (s *PlayingState) Match() *game.State {
	return s.match
}

func (s *PlayingState) OnEnter() {
	s.startedAt = s.Room.Now()
	logger.Log.Infof("房间 %s 开局: %d 名玩家, 先手 %s", s.Room.GetName(), len(s.match.Players), s.match.Turn)
	s.Room.Monitor().IncMatchesStarted()

	s.armTimer()
	s.Room.BroadcastRoomState()
	for _, e := range s.dealt.Events {
		hand := e.Payload.(game.HandPayload).Hand
		s.Room.SendTo(e.PlayerID, s.view(network.MsgGameStarted, e.PlayerID, hand))
	}
	s.dealt = nil
	s.Room.SaveSnapshot(s.match)
}

func (s *PlayingState) OnExit() {
	s.Room.CancelTurnTimer()
}

// HandleJoin admits only roster members, who reconnect to their seat.
func (s *PlayingState) HandleJoin(m Member) error {
	if _, _, ok := s.match.Player(m.ID); !ok {
		return ErrMatchInProgress
	}
	res, err := s.match.Reconnect(m.ID)
	if err != nil {
		return err
	}
	return s.apply(res)
}

func (s *PlayingState) HandleAction(m Member, action network.Action) error {
	var (
		res *game.Result
		err error
	)
	switch a := action.(type) {
	case network.PlayPiece:
		res, err = s.match.Play(m.ID, a.Piece, a.EndID)
	case network.PassTurn:
		res, err = s.match.Pass(m.ID)
	case network.DrawPiece:
		res, err = s.match.Draw(m.ID)
	case network.LeaveGame:
		res, err = s.match.Leave(m.ID, s.Room.Now(), false)
	case network.PlayerReady, network.StartGame:
		return ErrMatchInProgress
	default:
		return fmt.Errorf("%w: %s", network.ErrUnknownAction, action.ActionType())
	}
	if err != nil {
		return err
	}
	return s.apply(res)
}

func (s *PlayingState) HandleDisconnect(m Member, forced bool) error {
	if _, _, ok := s.match.Player(m.ID); !ok {
		return nil
	}
	res, err := s.match.Leave(m.ID, s.Room.Now(), forced)
	if err != nil {
		return err
	}
	return s.apply(res)
}

func (s *PlayingState) HandleSync(m Member) {
	s.Room.SendRoomState(m.ID)
	if _, _, ok := s.match.Player(m.ID); !ok {
		return
	}
	s.Room.SendTo(m.ID, s.view(network.MsgStateUpdated, m.ID, s.match.Hands[m.ID]))
}

// apply commits a result: invariant check, timer, events, then terminal.
func (s *PlayingState) apply(res *game.Result) error {
	changed := res.State != s.match
	if changed {
		if err := res.State.Validate(); err != nil {
			return err
		}
		s.match = res.State
	}

	if res.Terminal != nil {
		s.Room.CancelTurnTimer()
	} else if res.TurnAdvanced {
		s.armTimer()
	}

	for _, e := range res.Events {
		s.dispatch(e)
	}

	if res.Terminal != nil {
		return s.Room.ChangeState(NewSettlementState(s.Room, s.match, *res.Terminal, s.startedAt))
	}
	if changed {
		s.Room.SaveSnapshot(s.match)
	}
	return nil
}

func (s *PlayingState) dispatch(e game.Event) {
	switch e.Type {
	case game.EventStateUpdated:
		for _, p := range s.match.Players {
			s.Room.SendTo(p.ID, s.view(network.MsgStateUpdated, p.ID, nil))
		}
	case game.EventHandUpdated:
		s.Room.SendTo(e.PlayerID, network.NewHandMsg(e.Payload.(game.HandPayload).Hand))
	case game.EventChoosePlacement:
		p := e.Payload.(game.ChoosePlacementPayload)
		s.Room.SendTo(e.PlayerID, network.NewChoosePlacementMsg(p.Tile, p.Options))
	case game.EventPlayerDisconnected, game.EventPlayerReconnected:
		msg := network.PresenceMsg{Type: network.MsgPlayerReconnected, UserID: e.PlayerID}
		if e.Type == game.EventPlayerDisconnected {
			msg.Type = network.MsgPlayerDisconnected
			msg.Forced = e.Payload.(game.PresencePayload).Forced
		}
		if p, _, ok := s.match.Player(e.PlayerID); ok {
			msg.Username = p.Username
		}
		s.Room.Broadcast(msg)
	default:
		logger.Log.Warnf("房间 %s: 未处理的事件 %s", s.Room.GetName(), e.Type)
	}
}

func (s *PlayingState) view(typ, userID string, hand []domino.Tile) network.GameStateMsg {
	msg := network.GameStateMsg{
		Type: typ,
		View: s.match.View(),
		MyID: userID,
		Hand: hand,
	}
	if s.match.Turn != "" && !s.deadline.IsZero() {
		msg.TurnDeadline = s.deadline.UnixMilli()
	}
	return msg
}

func (s *PlayingState) armTimer() {
	if s.match.Turn == "" {
		return
	}
	d := s.Room.TurnDuration()
	s.deadline = s.Room.Now().Add(d)
	turn := s.match.Turn
	s.Room.ArmTurnTimer(d, func() error { return s.onTimeout(turn) })
}

// onTimeout plays for a player whose turn ran out, through the same entry
// point as a human action.
func (s *PlayingState) onTimeout(expected string) error {
	if s.match.Turn != expected {
		return nil
	}
	p, _, ok := s.match.Player(expected)
	if !ok {
		return nil
	}

	s.Room.Monitor().IncTurnTimeouts()
	move := s.match.AutoMove(expected)
	var action network.Action = network.PassTurn{}
	if move.Kind == game.MovePlay {
		action = network.PlayPiece{Piece: move.Tile, EndID: move.EndID}
	}
	logger.Log.Infof("房间 %s: %s 超时, 自动 %s", s.Room.GetName(), expected, action.ActionType())

	return s.HandleAction(Member{ID: p.ID, Username: p.Username}, action)
}
