// game/match.go
package game

import (
	"fmt"
	"time"

	"github.com/wfunc/dominoserver/domino"
)

// Deal starts a match: HandSize tiles to each player in join order, the rest
// become the boneyard and the first player starts.
func Deal(players []Player, deck []domino.Tile, rules Rules) (*Result, error) {
	if len(players) < rules.MinPlayers || len(players) == 0 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(players), rules.MinPlayers)
	}
	if (rules.MaxPlayers > 0 && len(players) > rules.MaxPlayers) || len(players)*rules.HandSize > len(deck) {
		return nil, fmt.Errorf("%w: %d players", ErrTooManyPlayers, len(players))
	}
	if err := checkDeck(deck); err != nil {
		return nil, err
	}

	s := &State{
		Players: make([]Player, len(players)),
		Hands:   make(map[string][]domino.Tile, len(players)),
		Turn:    players[0].ID,
		Rules:   rules,
	}
	for i, p := range players {
		s.Players[i] = Player{ID: p.ID, Username: p.Username}
		s.Hands[p.ID] = cloneTiles(deck[i*rules.HandSize : (i+1)*rules.HandSize])
	}
	s.Boneyard = cloneTiles(deck[len(players)*rules.HandSize:])

	res := &Result{State: s, TurnAdvanced: true}
	for _, p := range s.Players {
		res.emit(Event{
			Type:     EventMatchStarted,
			Target:   TargetPlayer,
			PlayerID: p.ID,
			Payload:  HandPayload{Hand: cloneTiles(s.Hands[p.ID])},
		})
	}
	return res, nil
}

// Play lays tile from the player's hand. With several legal ends and no
// endID the result only carries a choose-placement event.
func (s *State) Play(playerID string, tile domino.Tile, endID string) (*Result, error) {
	player, err := s.requireTurn(playerID)
	if err != nil {
		return nil, err
	}

	idx := domino.IndexOf(s.Hands[playerID], tile)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTileNotHeld, tile)
	}
	held := s.Hands[playerID][idx]

	if !s.Board.Empty() {
		legal := s.Board.LegalEnds(held, s.Rules.Bounds)
		switch {
		case len(legal) == 0:
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, held)
		case endID == "" && len(legal) > 1:
			res := &Result{State: s}
			res.emit(Event{
				Type:     EventChoosePlacement,
				Target:   TargetPlayer,
				PlayerID: playerID,
				Payload:  ChoosePlacementPayload{Tile: held, Options: legal},
			})
			return res, nil
		case endID == "":
			endID = legal[0].ID
		case !containsEnd(legal, endID):
			return nil, fmt.Errorf("%w: %s at %s", ErrIllegalMove, held, endID)
		}
	}

	placement, err := s.Board.Plan(held, endID, s.Rules.Bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}

	next := s.Clone()
	next.Board.Apply(placement)
	hand := next.Hands[playerID]
	next.Hands[playerID] = append(hand[:idx:idx], hand[idx+1:]...)
	next.ConsecutivePasses = 0

	res := &Result{State: next}
	res.emit(handUpdated(playerID, next.Hands[playerID]))

	if len(next.Hands[playerID]) == 0 {
		res.emit(stateUpdated())
		res.Terminal = &Terminal{Winner: &player, Reason: ReasonEmptiedHand}
		return res, nil
	}

	// Nobody can move on a board without ends, so the player passes for free.
	if len(next.Board.Ends) == 0 {
		return next.pass(playerID, res), nil
	}

	next.advance(playerID)
	res.TurnAdvanced = true
	res.emit(stateUpdated())
	return res, nil
}

// Draw moves the last boneyard tile into the player's hand. The turn stays.
func (s *State) Draw(playerID string) (*Result, error) {
	if _, err := s.requireTurn(playerID); err != nil {
		return nil, err
	}
	if len(s.Boneyard) == 0 {
		return nil, ErrBoneyardEmpty
	}
	if s.Rules.StrictDraw && s.HasLegalPlay(playerID) {
		return nil, ErrMustPlay
	}

	next := s.Clone()
	last := len(next.Boneyard) - 1
	tile := next.Boneyard[last]
	next.Boneyard = next.Boneyard[:last]
	next.Hands[playerID] = append(next.Hands[playerID], tile)

	res := &Result{State: next}
	res.emit(handUpdated(playerID, next.Hands[playerID]))
	return res, nil
}

// Pass gives up the turn. When every active player has passed in a row the
// match is blocked and the lowest hand wins.
func (s *State) Pass(playerID string) (*Result, error) {
	if _, err := s.requireTurn(playerID); err != nil {
		return nil, err
	}
	next := s.Clone()
	return next.pass(playerID, &Result{State: next}), nil
}

func (s *State) pass(playerID string, res *Result) *Result {
	s.ConsecutivePasses++
	active := s.ActivePlayers()
	if s.ConsecutivePasses >= len(active) {
		res.emit(stateUpdated())
		res.Terminal = s.blockedOutcome(active)
		return res
	}
	s.advance(playerID)
	res.TurnAdvanced = true
	res.emit(stateUpdated())
	return res
}

func (s *State) blockedOutcome(active []Player) *Terminal {
	var (
		winner Player
		best   = -1
		tied   bool
	)
	for _, p := range active {
		points := s.HandPoints(p.ID)
		switch {
		case best < 0 || points < best:
			best, winner, tied = points, p, false
		case points == best:
			tied = true
		}
	}
	if best < 0 || tied {
		return &Terminal{Reason: ReasonDraw}
	}
	return &Terminal{Winner: &winner, Reason: ReasonFewestPoints}
}

// Leave marks the player disconnected at now. forced distinguishes a dropped
// connection from an explicit leave; both keep the player on the roster.
func (s *State) Leave(playerID string, now time.Time, forced bool) (*Result, error) {
	player, idx, ok := s.Player(playerID)
	if !ok {
		return nil, ErrPlayerNotInMatch
	}
	if !player.Active() {
		return &Result{State: s}, nil
	}

	next := s.Clone()
	stamp := now.UnixMilli()
	if stamp <= 0 {
		stamp = 1
	}
	next.Players[idx].DisconnectedSince = stamp

	res := &Result{State: next}
	res.emit(Event{
		Type:     EventPlayerDisconnected,
		Target:   TargetRoom,
		PlayerID: playerID,
		Payload:  PresencePayload{Forced: forced},
	})

	active := next.ActivePlayers()
	switch {
	case len(active) == 0:
		next.Turn = ""
		res.Terminal = &Terminal{Reason: ReasonAllLeft}
	case len(active) == 1 && len(next.Players) > 1:
		winner := active[0]
		next.Turn = winner.ID
		res.Terminal = &Terminal{Winner: &winner, Reason: ReasonOpponentsLeft}
	default:
		if next.Turn == playerID {
			next.advance(playerID)
			res.TurnAdvanced = true
		}
	}
	res.emit(stateUpdated())
	return res, nil
}

// Reconnect clears the player's disconnect timestamp.
func (s *State) Reconnect(playerID string) (*Result, error) {
	player, idx, ok := s.Player(playerID)
	if !ok {
		return nil, ErrPlayerNotInMatch
	}
	if player.Active() {
		res := &Result{State: s}
		res.emit(stateUpdated())
		return res, nil
	}

	next := s.Clone()
	next.Players[idx].DisconnectedSince = 0
	res := &Result{State: next}
	res.emit(Event{Type: EventPlayerReconnected, Target: TargetRoom, PlayerID: playerID})
	res.emit(stateUpdated())
	return res, nil
}

func (s *State) requireTurn(playerID string) (Player, error) {
	player, _, ok := s.Player(playerID)
	if !ok {
		return Player{}, ErrPlayerNotInMatch
	}
	if !player.Active() {
		return Player{}, ErrPlayerDisconnected
	}
	if s.Turn != playerID {
		return Player{}, ErrNotYourTurn
	}
	return player, nil
}

func (s *State) advance(from string) {
	s.Turn = NextTurn(from, s.Players)
}

// NextTurn returns the next active player after current in join order,
// wrapping around. The search starts from current's roster position even if
// current is disconnected. It returns "" when nobody is active.
func NextTurn(current string, players []Player) string {
	n := len(players)
	start := -1
	for i, p := range players {
		if p.ID == current {
			start = i
			break
		}
	}
	for step := 1; step <= n; step++ {
		p := players[(start+step+n)%n]
		if p.Active() {
			return p.ID
		}
	}
	return ""
}

func containsEnd(ends []domino.OpenEnd, id string) bool {
	for _, e := range ends {
		if e.ID == id {
			return true
		}
	}
	return false
}
