package state

import (
	"errors"
	"sync"

	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/network"
)

// 状态ID
const (
	StateLobby      = "waiting"
	StatePlaying    = "playing"
	StateSettlement = "settlement"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(fromID, toID string, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() string
	HandleJoin(m Member) error
	HandleAction(m Member, action network.Action) error
	HandleDisconnect(m Member, forced bool) error
	// HandleSync sends the member everything needed to redraw the room.
	HandleSync(m Member)
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine runs OnExit/OnEnter outside its lock. A ChangeState made
// from inside OnEnter is queued and applied once the current switch ends.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	pending      []State
	changing     bool
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
}

// Start enters the initial state.
func (sm *BaseStateMachine) Start() {
	sm.mutex.Lock()
	sm.changing = true
	cur := sm.currentState
	sm.mutex.Unlock()

	cur.OnEnter()
	sm.drain()
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	if sm.changing {
		sm.pending = append(sm.pending, newState)
		sm.mutex.Unlock()
		return nil
	}
	if !sm.allowed(newState) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	sm.changing = true
	sm.mutex.Unlock()

	sm.swap(newState)
	sm.drain()
	return nil
}

func (sm *BaseStateMachine) swap(newState State) {
	sm.mutex.Lock()
	old := sm.currentState
	sm.mutex.Unlock()

	old.OnExit()

	sm.mutex.Lock()
	sm.currentState = newState
	sm.mutex.Unlock()

	newState.OnEnter()
}

func (sm *BaseStateMachine) drain() {
	for {
		sm.mutex.Lock()
		if len(sm.pending) == 0 {
			sm.changing = false
			sm.mutex.Unlock()
			return
		}
		next := sm.pending[0]
		sm.pending = sm.pending[1:]
		ok := sm.allowed(next)
		cur := sm.currentState.GetID()
		sm.mutex.Unlock()

		if !ok {
			logger.Log.Warnf("queued transition %s -> %s rejected", cur, next.GetID())
			continue
		}
		sm.swap(next)
	}
}

// allowed must be called with the lock held. A state with registered
// transitions may only move to those targets.
func (sm *BaseStateMachine) allowed(newState State) bool {
	conditions, exists := sm.transitions[sm.currentState.GetID()]
	if !exists {
		return true
	}
	condition, exists := conditions[newState.GetID()]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(fromID, toID string, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// NewRoomStateMachine wires the room lifecycle:
// waiting -> playing -> settlement -> waiting.
func NewRoomStateMachine(room RoomContext) *BaseStateMachine {
	sm := NewBaseStateMachine(NewLobbyState(room))
	sm.AddTransition(StateLobby, StatePlaying, nil)
	sm.AddTransition(StatePlaying, StateSettlement, nil)
	sm.AddTransition(StateSettlement, StateLobby, nil)
	return sm
}

// 房间状态基础结构
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {
	// 默认实现
}

func (s *RoomStateBase) OnExit() {
	// 默认实现
}

func (s *RoomStateBase) HandleJoin(m Member) error {
	return ErrMatchInProgress
}

func (s *RoomStateBase) HandleAction(m Member, action network.Action) error {
	return ErrMatchInProgress
}

func (s *RoomStateBase) HandleDisconnect(m Member, forced bool) error {
	return nil
}

func (s *RoomStateBase) HandleSync(m Member) {
	s.Room.SendRoomState(m.ID)
}
