package network

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
)

// Inbound message types.
const (
	MsgPlayPiece   = "PLAY_PIECE"
	MsgPassTurn    = "PASS_TURN"
	MsgDrawPiece   = "DRAW_PIECE"
	MsgLeaveGame   = "LEAVE_GAME"
	MsgPlayerReady = "PLAYER_READY"
	MsgStartGame   = "START_GAME"
	MsgListRooms   = "LIST_ROOMS"
)

// Outbound message types.
const (
	MsgRoomState          = "ROOM_STATE"
	MsgGameStarted        = "JOGO_INICIADO"
	MsgStateUpdated       = "ESTADO_ATUALIZADO"
	MsgUpdateHand         = "UPDATE_HAND"
	MsgChoosePlacement    = "CHOOSE_PLACEMENT"
	MsgGameOver           = "JOGO_TERMINADO"
	MsgError              = "ERRO"
	MsgRoomList           = "ROOM_LIST"
	MsgPlayerDisconnected = "PLAYER_DISCONNECTED"
	MsgPlayerReconnected  = "PLAYER_RECONNECTED"
)

var ErrUnknownAction = errors.New("unknown action")

// Action is the closed set of inbound player actions.
type Action interface {
	ActionType() string
	action()
}

type PlayPiece struct {
	Piece domino.Tile `json:"piece"`
	EndID string      `json:"endId,omitempty"`
}

type PassTurn struct{}
type DrawPiece struct{}
type LeaveGame struct{}
type PlayerReady struct{}
type StartGame struct{}
type ListRooms struct{}

func (PlayPiece) ActionType() string   { return MsgPlayPiece }
func (PassTurn) ActionType() string    { return MsgPassTurn }
func (DrawPiece) ActionType() string   { return MsgDrawPiece }
func (LeaveGame) ActionType() string   { return MsgLeaveGame }
func (PlayerReady) ActionType() string { return MsgPlayerReady }
func (StartGame) ActionType() string   { return MsgStartGame }
func (ListRooms) ActionType() string   { return MsgListRooms }

func (PlayPiece) action()   {}
func (PassTurn) action()    {}
func (DrawPiece) action()   {}
func (LeaveGame) action()   {}
func (PlayerReady) action() {}
func (StartGame) action()   {}
func (ListRooms) action()   {}

// DecodeAction turns a packet into its typed action.
func DecodeAction(p *Packet) (Action, error) {
	switch p.Type {
	case MsgPlayPiece:
		var a PlayPiece
		if err := json.Unmarshal(p.Data, &a); err != nil {
			return nil, &MalformedError{Err: err}
		}
		if !a.Piece.Valid() {
			return nil, &MalformedError{Err: fmt.Errorf("invalid piece %s", a.Piece)}
		}
		return a, nil
	case MsgPassTurn:
		return PassTurn{}, nil
	case MsgDrawPiece:
		return DrawPiece{}, nil
	case MsgLeaveGame:
		return LeaveGame{}, nil
	case MsgPlayerReady:
		return PlayerReady{}, nil
	case MsgStartGame:
		return StartGame{}, nil
	case MsgListRooms:
		return ListRooms{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, p.Type)
	}
}

// EncodeAction builds the wire form of an action, used by clients and tests.
func EncodeAction(a Action) ([]byte, error) {
	body := map[string]any{"type": a.ActionType()}
	if play, ok := a.(PlayPiece); ok {
		body["piece"] = play.Piece
		if play.EndID != "" {
			body["endId"] = play.EndID
		}
	}
	return json.Marshal(body)
}

type MemberInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type RoomStateMsg struct {
	Type         string       `json:"type"`
	Room         string       `json:"room"`
	MyID         string       `json:"myId"`
	HostID       string       `json:"hostId"`
	Players      []MemberInfo `json:"players"`
	ReadyPlayers []string     `json:"readyPlayers"`
	PlayerCount  int          `json:"playerCount"`
	MaxPlayers   int          `json:"maxPlayers"`
	Status       string       `json:"status"`
	HasPassword  bool         `json:"hasPassword"`
}

// GameStateMsg is the public match view, optionally with the recipient's hand.
type GameStateMsg struct {
	Type string `json:"type"`
	game.View
	MyID         string        `json:"myId,omitempty"`
	Hand         []domino.Tile `json:"hand,omitempty"`
	TurnDeadline int64         `json:"turnDeadline,omitempty"`
}

type HandMsg struct {
	Type        string        `json:"type"`
	YourNewHand []domino.Tile `json:"yourNewHand"`
}

func NewHandMsg(hand []domino.Tile) HandMsg {
	if hand == nil {
		hand = []domino.Tile{}
	}
	return HandMsg{Type: MsgUpdateHand, YourNewHand: hand}
}

type PlacementOption struct {
	EndID string `json:"endId"`
	Value int    `json:"value"`
}

type ChoosePlacementMsg struct {
	Type    string            `json:"type"`
	Piece   domino.Tile       `json:"piece"`
	Options []PlacementOption `json:"options"`
}

func NewChoosePlacementMsg(piece domino.Tile, ends []domino.OpenEnd) ChoosePlacementMsg {
	msg := ChoosePlacementMsg{Type: MsgChoosePlacement, Piece: piece, Options: make([]PlacementOption, 0, len(ends))}
	for _, e := range ends {
		msg.Options = append(msg.Options, PlacementOption{EndID: e.ID, Value: e.Value})
	}
	return msg
}

type GameOverMsg struct {
	Type       string `json:"type"`
	Winner     string `json:"winner,omitempty"`
	WinnerID   string `json:"winnerId,omitempty"`
	Reason     string `json:"reason"`
	CanRematch bool   `json:"canRematch"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMsg(message string) ErrorMsg {
	return ErrorMsg{Type: MsgError, Message: message}
}

type RoomSummary struct {
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	HasPassword bool   `json:"hasPassword"`
}

type RoomListMsg struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

func NewRoomListMsg(rooms []RoomSummary) RoomListMsg {
	if rooms == nil {
		rooms = []RoomSummary{}
	}
	return RoomListMsg{Type: MsgRoomList, Rooms: rooms}
}

type PresenceMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
}
