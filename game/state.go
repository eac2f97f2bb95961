// game/state.go
package game

import (
	"github.com/wfunc/dominoserver/domino"
)

// Player is a roster entry. DisconnectedSince holds unix milliseconds and is
// zero while the player is active.
type Player struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	DisconnectedSince int64  `json:"disconnectedSince,omitempty"`
}

// Active reports whether the player takes part in turn rotation.
func (p Player) Active() bool {
	return p.DisconnectedSince == 0
}

// Rules are the per-room match settings.
type Rules struct {
	MinPlayers int           `json:"minPlayers"`
	MaxPlayers int           `json:"maxPlayers"`
	HandSize   int           `json:"handSize"`
	Bounds     domino.Bounds `json:"bounds"`
	// StrictDraw rejects drawing while the player holds a legal play.
	StrictDraw bool `json:"strictDraw,omitempty"`
}

// DefaultRules returns the standard two to four player block game.
func DefaultRules() Rules {
	return Rules{
		MinPlayers: 2,
		MaxPlayers: 4,
		HandSize:   7,
		Bounds:     domino.DefaultBounds(),
	}
}

// State is the authoritative match aggregate.
type State struct {
	Players           []Player                 `json:"players"`
	Hands             map[string][]domino.Tile `json:"hands"`
	Board             domino.Board             `json:"board"`
	Boneyard          []domino.Tile            `json:"boneyard"`
	Turn              string                   `json:"turn"`
	ConsecutivePasses int                      `json:"consecutivePasses"`
	Rules             Rules                    `json:"rules"`
}

// Clone returns a deep copy so operations never mutate their input.
func (s *State) Clone() *State {
	out := *s
	out.Players = append([]Player(nil), s.Players...)
	out.Hands = make(map[string][]domino.Tile, len(s.Hands))
	for id, hand := range s.Hands {
		out.Hands[id] = cloneTiles(hand)
	}
	out.Board = s.Board.Clone()
	out.Boneyard = cloneTiles(s.Boneyard)
	return &out
}

// Player returns the roster entry and its join index.
func (s *State) Player(id string) (Player, int, bool) {
	for i, p := range s.Players {
		if p.ID == id {
			return p, i, true
		}
	}
	return Player{}, -1, false
}

// ActivePlayers returns the players without a disconnect timestamp, in join order.
func (s *State) ActivePlayers() []Player {
	var active []Player
	for _, p := range s.Players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

// HandPoints sums the pip values the player still holds.
func (s *State) HandPoints(id string) int {
	total := 0
	for _, t := range s.Hands[id] {
		total += t.Points()
	}
	return total
}

// HasLegalPlay reports whether any held tile can be laid right now.
func (s *State) HasLegalPlay(id string) bool {
	hand := s.Hands[id]
	if s.Board.Empty() {
		return len(hand) > 0
	}
	for _, t := range hand {
		if len(s.Board.LegalEnds(t, s.Rules.Bounds)) > 0 {
			return true
		}
	}
	return false
}

func cloneTiles(tiles []domino.Tile) []domino.Tile {
	if tiles == nil {
		return nil
	}
	out := make([]domino.Tile, len(tiles))
	copy(out, tiles)
	return out
}
