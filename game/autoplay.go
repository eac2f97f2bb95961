package game

import "github.com/wfunc/dominoserver/domino"

// MoveKind is what the automatic player decided.
type MoveKind int

const (
	MovePlay MoveKind = iota
	MovePass
)

// Move is a fully specified action for the player on turn.
type Move struct {
	Kind  MoveKind
	Tile  domino.Tile
	EndID string
}

// AutoMove picks the move made on behalf of a player whose turn ran out: the
// first tile in hand order that fits, at its first legal end, else a pass.
// It never draws.
func (s *State) AutoMove(playerID string) Move {
	hand := s.Hands[playerID]
	if s.Board.Empty() {
		if len(hand) > 0 {
			return Move{Kind: MovePlay, Tile: hand[0]}
		}
		return Move{Kind: MovePass}
	}
	for _, t := range hand {
		if legal := s.Board.LegalEnds(t, s.Rules.Bounds); len(legal) > 0 {
			return Move{Kind: MovePlay, Tile: t, EndID: legal[0].ID}
		}
	}
	return Move{Kind: MovePass}
}

// Apply runs the move for playerID.
func (m Move) Apply(s *State, playerID string) (*Result, error) {
	if m.Kind == MovePlay {
		return s.Play(playerID, m.Tile, m.EndID)
	}
	return s.Pass(playerID)
}
