package game

import (
	"fmt"

	"github.com/wfunc/dominoserver/domino"
)

// Validate checks the structural invariants of a match: every tile of the set
// appears exactly once across hands, board and boneyard, and the turn belongs
// to an active player unless nobody is active.
func (s *State) Validate() error {
	seen := make(map[domino.Tile]string, domino.SetSize)
	mark := func(t domino.Tile, where string) error {
		if !t.Valid() {
			return fmt.Errorf("%w: invalid tile %s in %s", ErrInvariant, t, where)
		}
		key := t.Normalize()
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s in both %s and %s", ErrInvariant, t, prev, where)
		}
		seen[key] = where
		return nil
	}

	for _, p := range s.Players {
		for _, t := range s.Hands[p.ID] {
			if err := mark(t, "hand of "+p.ID); err != nil {
				return err
			}
		}
	}
	for id := range s.Hands {
		if _, _, ok := s.Player(id); !ok {
			return fmt.Errorf("%w: hand for unknown player %s", ErrInvariant, id)
		}
	}
	for _, p := range s.Board.Tiles {
		if err := mark(p.Tile, "board"); err != nil {
			return err
		}
	}
	for _, t := range s.Boneyard {
		if err := mark(t, "boneyard"); err != nil {
			return err
		}
	}
	if len(seen) != domino.SetSize {
		return fmt.Errorf("%w: %d tiles accounted for, want %d", ErrInvariant, len(seen), domino.SetSize)
	}

	active := s.ActivePlayers()
	if len(active) == 0 {
		if s.Turn != "" {
			return fmt.Errorf("%w: turn %s with no active players", ErrInvariant, s.Turn)
		}
		return nil
	}
	p, _, ok := s.Player(s.Turn)
	if !ok || !p.Active() {
		return fmt.Errorf("%w: turn %q is not an active player", ErrInvariant, s.Turn)
	}
	return nil
}

func checkDeck(deck []domino.Tile) error {
	if len(deck) != domino.SetSize {
		return fmt.Errorf("%w: deck has %d tiles", ErrInvariant, len(deck))
	}
	seen := make(map[domino.Tile]bool, len(deck))
	for _, t := range deck {
		key := t.Normalize()
		if !t.Valid() || seen[key] {
			return fmt.Errorf("%w: bad deck tile %s", ErrInvariant, t)
		}
		seen[key] = true
	}
	return nil
}
