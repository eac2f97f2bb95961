package game

import "github.com/wfunc/dominoserver/domino"

// EventType identifies an outbound event produced by an operation.
type EventType string

const (
	EventMatchStarted       EventType = "match_started"
	EventStateUpdated       EventType = "state_updated"
	EventHandUpdated        EventType = "hand_updated"
	EventChoosePlacement    EventType = "choose_placement"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerReconnected  EventType = "player_reconnected"
)

// Target says who receives an event.
type Target int

const (
	// TargetPlayer delivers to PlayerID only.
	TargetPlayer Target = iota
	// TargetRoom delivers to every room member.
	TargetRoom
)

// Event is one outbound notification. PlayerID is the recipient for
// TargetPlayer and the subject for room notices.
type Event struct {
	Type     EventType
	Target   Target
	PlayerID string
	Payload  any
}

// HandPayload carries a private hand.
type HandPayload struct {
	Hand []domino.Tile
}

// ChoosePlacementPayload lists the ends a tile could attach to.
type ChoosePlacementPayload struct {
	Tile    domino.Tile
	Options []domino.OpenEnd
}

// PresencePayload accompanies disconnect notices.
type PresencePayload struct {
	Forced bool
}

// Terminal outcome reasons.
const (
	ReasonEmptiedHand   = "emptied hand"
	ReasonFewestPoints  = "fewest points"
	ReasonDraw          = "draw"
	ReasonAllLeft       = "all players left"
	ReasonOpponentsLeft = "opponent(s) left"
)

// Terminal is a finished match. Winner is nil for a draw or abandonment.
type Terminal struct {
	Winner *Player
	Reason string
}

// Result is what every operation returns alongside a nil error. State is the
// resulting state, which is the receiver itself when nothing changed.
type Result struct {
	State        *State
	Events       []Event
	Terminal     *Terminal
	TurnAdvanced bool
}

func (r *Result) emit(e Event) {
	r.Events = append(r.Events, e)
}

func stateUpdated() Event {
	return Event{Type: EventStateUpdated, Target: TargetRoom}
}

func handUpdated(id string, hand []domino.Tile) Event {
	return Event{
		Type:     EventHandUpdated,
		Target:   TargetPlayer,
		PlayerID: id,
		Payload:  HandPayload{Hand: cloneTiles(hand)},
	}
}
