package game

import "github.com/wfunc/dominoserver/domino"

// PlayerView is the public part of a roster entry.
type PlayerView struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PieceCount   int    `json:"pieceCount"`
	Disconnected bool   `json:"isDisconnected"`
}

// View is the state every room member may see. Hands are never included.
type View struct {
	Board        []domino.PlacedTile `json:"board"`
	ActiveEnds   []domino.OpenEnd    `json:"activeEnds"`
	Turn         string              `json:"turn"`
	Players      []PlayerView        `json:"players"`
	BoneyardSize int                 `json:"boneyardSize"`
}

// View builds the public projection.
func (s *State) View() View {
	v := View{
		Board:        append([]domino.PlacedTile{}, s.Board.Tiles...),
		ActiveEnds:   append([]domino.OpenEnd{}, s.Board.Ends...),
		Turn:         s.Turn,
		Players:      make([]PlayerView, 0, len(s.Players)),
		BoneyardSize: len(s.Boneyard),
	}
	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerView{
			ID:           p.ID,
			Username:     p.Username,
			PieceCount:   len(s.Hands[p.ID]),
			Disconnected: !p.Active(),
		})
	}
	return v
}
