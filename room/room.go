// room/room.go
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/monitor"
	"github.com/wfunc/dominoserver/network"
	"github.com/wfunc/dominoserver/persistence"
	"github.com/wfunc/dominoserver/state"
	"github.com/wfunc/dominoserver/timer"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrWrongPassword   = auth.ErrWrongPassword
	ErrRoomClosed      = errors.New("the room was closed")
	ErrInvalidRoomName = errors.New("invalid room name")
)

const (
	inboxSize       = 64
	snapshotTimeout = 2 * time.Second
)

// Deps 房间共享的依赖
type Deps struct {
	Broadcaster  Broadcaster
	Timers       *timer.TimerManager
	Snapshots    persistence.SnapshotStore // 可选
	Archiver     Archiver                  // 可选
	Monitor      *monitor.Monitor
	Rules        game.Rules
	TurnDuration time.Duration
	// Deck 返回新一局的牌, 为空时随机洗牌
	Deck func() []domino.Tile
	Now  func() time.Time
}

// Room 是一个房间的 actor: 所有状态只在 loop goroutine 中读写
type Room struct {
	Name      string
	CreatedAt time.Time

	deps         Deps
	rng          *rand.Rand
	log          *zap.SugaredLogger
	passwordHash string

	// 以下字段只在 loop 中访问
	StateMachine *state.BaseStateMachine
	members      []state.Member
	host         string
	ready        map[string]bool
	timerID      int64
	timerSeq     uint64
	closing      bool

	inbox chan func()
	done  chan struct{}

	statusMutex sync.RWMutex
	status      string
	summary     network.RoomSummary

	onChange  func(*Room)
	onDestroy func(*Room)
}

// newRoom 创建并启动房间. passwordHash 为空表示不设密码
func newRoom(name, passwordHash string, deps Deps) *Room {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := &Room{
		Name:         name,
		CreatedAt:    deps.Now(),
		deps:         deps,
		rng:          rand.New(rand.NewSource(deps.Now().UnixNano())),
		log:          logger.Log.With("room", name),
		passwordHash: passwordHash,
		ready:        make(map[string]bool),
		inbox:        make(chan func(), inboxSize),
		done:         make(chan struct{}),
	}

	r.StateMachine = state.NewRoomStateMachine(r)
	r.StateMachine.Start()
	r.refresh()

	go r.loop()
	return r
}

// --- actor ---

func (r *Room) loop() {
	defer close(r.done)
	for fn := range r.inbox {
		fn()
		if r.closing {
			r.shutdown()
			return
		}
	}
}

// call runs fn in the loop and waits for its error.
func (r *Room) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	task := func() { errc <- r.exec(fn) }

	select {
	case r.inbox <- task:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-r.done:
		// The loop writes errc before closing done.
		select {
		case err := <-errc:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

// enqueue runs fn in the loop without waiting. It reports false when the
// room is already closed.
func (r *Room) enqueue(fn func() error) bool {
	task := func() {
		if err := r.exec(fn); err != nil {
			r.log.Warnf("后台任务失败: %v", err)
		}
	}
	select {
	case r.inbox <- task:
		return true
	case <-r.done:
		return false
	}
}

// exec turns panics and invariant violations into a teardown.
func (r *Room) exec(fn func() error) (err error) {
	if r.closing {
		return ErrRoomClosed
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("房间处理异常", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", game.ErrInvariant, p)
		}
		if errors.Is(err, game.ErrInvariant) {
			r.teardown(err)
			return
		}
		r.refresh()
	}()
	return fn()
}

func (r *Room) teardown(cause error) {
	r.log.Errorf("房间状态异常, 关闭房间: %v", cause)
	r.Broadcast(network.NewErrorMsg("the room was closed after an internal error"))
	r.DeleteSnapshot()
	r.Destroy()
}

func (r *Room) shutdown() {
	r.CancelTurnTimer()
	r.statusMutex.Lock()
	r.status = StatusClosed
	r.statusMutex.Unlock()
	r.log.Infof("房间关闭")
	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}

// refresh republishes the cached status and summary read by other
// goroutines, notifying the manager when they changed.
func (r *Room) refresh() {
	status := r.StateMachine.GetCurrentState().GetID()
	summary := network.RoomSummary{
		Name:        r.Name,
		PlayerCount: len(r.members),
		MaxPlayers:  r.deps.Rules.MaxPlayers,
		HasPassword: r.passwordHash != "",
	}

	r.statusMutex.Lock()
	changed := r.status != status || r.summary != summary
	r.status = status
	r.summary = summary
	r.statusMutex.Unlock()

	if changed && !r.closing && r.onChange != nil {
		r.onChange(r)
	}
}

// --- 对外接口, 可并发调用 ---

// Join admits m. Newcomers to a password-gated room must supply the
// password; current members reconnect without it.
func (r *Room) Join(ctx context.Context, m state.Member, password string) error {
	return r.call(ctx, func() error {
		if _, ok := r.Member(m.ID); !ok && r.passwordHash != "" {
			if err := auth.CheckPassword(r.passwordHash, password); err != nil {
				return err
			}
		}
		err := r.StateMachine.GetCurrentState().HandleJoin(m)
		if err != nil && len(r.members) == 0 {
			r.Destroy()
		}
		return err
	})
}

// Submit applies an inbound action from m.
func (r *Room) Submit(ctx context.Context, m state.Member, action network.Action) error {
	err := r.call(ctx, func() error {
		return r.StateMachine.GetCurrentState().HandleAction(m, action)
	})
	if err != nil && !errors.Is(err, game.ErrInvariant) {
		r.deps.Monitor.IncRejectedActions(action.ActionType())
	}
	return err
}

// Disconnect reports that m's connection went away (forced) or that m left.
func (r *Room) Disconnect(ctx context.Context, m state.Member, forced bool) error {
	return r.call(ctx, func() error {
		return r.StateMachine.GetCurrentState().HandleDisconnect(m, forced)
	})
}

// HasMember reports whether id still holds a seat in the room.
func (r *Room) HasMember(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.call(ctx, func() error {
		_, ok = r.Member(id)
		return nil
	})
	return ok, err
}

// Sync sends m everything needed to render the room.
func (r *Room) Sync(ctx context.Context, m state.Member) error {
	return r.call(ctx, func() error {
		r.StateMachine.GetCurrentState().HandleSync(m)
		return nil
	})
}

// Close stops the room without a match outcome.
func (r *Room) Close() {
	r.enqueue(func() error {
		r.Destroy()
		return nil
	})
}

// Done is closed once the room loop has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Status 获取房间的业务状态
func (r *Room) Status() string {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.status
}

// Summary 大厅列表中的房间信息
func (r *Room) Summary() network.RoomSummary {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.summary
}

// --- 实现 state.RoomContext 接口 ---

func (r *Room) GetName() string {
	return r.Name
}

func (r *Room) Members() []state.Member {
	return append([]state.Member(nil), r.members...)
}

func (r *Room) Member(id string) (state.Member, bool) {
	for _, m := range r.members {
		if m.ID == id {
			return m, true
		}
	}
	return state.Member{}, false
}

func (r *Room) AddMember(m state.Member) {
	r.members = append(r.members, m)
	if r.host == "" {
		r.host = m.ID
	}
}

func (r *Room) RemoveMember(id string) {
	kept := r.members[:0]
	for _, m := range r.members {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.members = kept
	delete(r.ready, id)
	if r.host == id {
		r.host = ""
		if len(r.members) > 0 {
			r.host = r.members[0].ID
			r.log.Infof("房主变更为 %s", r.host)
		}
	}
}

func (r *Room) HostID() string {
	return r.host
}

func (r *Room) IsReady(id string) bool {
	return r.ready[id]
}

func (r *Room) SetReady(id string, ready bool) {
	if ready {
		r.ready[id] = true
		return
	}
	delete(r.ready, id)
}

func (r *Room) ReadyCount() int {
	return len(r.ready)
}

func (r *Room) ClearReady() {
	r.ready = make(map[string]bool)
}

func (r *Room) Rules() game.Rules {
	return r.deps.Rules
}

func (r *Room) TurnDuration() time.Duration {
	return r.deps.TurnDuration
}

func (r *Room) NewDeck() []domino.Tile {
	if r.deps.Deck != nil {
		return r.deps.Deck()
	}
	return domino.ShuffledSet(r.rng)
}

func (r *Room) Now() time.Time {
	return r.deps.Now()
}

// ChangeState 改变房间的状态机状态
func (r *Room) ChangeState(newState state.State) error {
	return r.StateMachine.ChangeState(newState)
}

func (r *Room) memberIDs() []string {
	ids := make([]string, len(r.members))
	for i, m := range r.members {
		ids[i] = m.ID
	}
	return ids
}

func (r *Room) SendTo(userID string, msg any) {
	if err := r.deps.Broadcaster.SendToUser(r.Name, userID, msg); err != nil {
		r.log.Debugf("send to %s: %v", userID, err)
	}
}

func (r *Room) Broadcast(msg any) {
	if err := r.deps.Broadcaster.BroadcastToRoom(r.Name, r.memberIDs(), msg); err != nil {
		r.log.Warnf("broadcast: %v", err)
	}
}

func (r *Room) roomState(userID string) network.RoomStateMsg {
	msg := network.RoomStateMsg{
		Type:         network.MsgRoomState,
		Room:         r.Name,
		MyID:         userID,
		HostID:       r.host,
		Players:      make([]network.MemberInfo, len(r.members)),
		ReadyPlayers: []string{},
		PlayerCount:  len(r.members),
		MaxPlayers:   r.deps.Rules.MaxPlayers,
		Status:       r.StateMachine.GetCurrentState().GetID(),
		HasPassword:  r.passwordHash != "",
	}
	for i, m := range r.members {
		msg.Players[i] = network.MemberInfo{ID: m.ID, Username: m.Username}
		if r.ready[m.ID] {
			msg.ReadyPlayers = append(msg.ReadyPlayers, m.ID)
		}
	}
	return msg
}

func (r *Room) SendRoomState(userID string) {
	r.SendTo(userID, r.roomState(userID))
}

// BroadcastRoomState sends every member its own ROOM_STATE, which differs
// only in myId.
func (r *Room) BroadcastRoomState() {
	for _, m := range r.members {
		r.SendRoomState(m.ID)
	}
}

// ArmTurnTimer 重新设置回合计时器
func (r *Room) ArmTurnTimer(d time.Duration, fn func() error) {
	r.CancelTurnTimer()
	r.timerSeq++
	seq := r.timerSeq
	r.timerID = r.deps.Timers.AddTimer(d, 0, func() {
		r.enqueue(func() error {
			// A timer cancelled after it fired is still in flight.
			if seq != r.timerSeq {
				return nil
			}
			r.timerID = 0
			return fn()
		})
	})
}

func (r *Room) CancelTurnTimer() {
	r.timerSeq++
	if r.timerID != 0 {
		r.deps.Timers.RemoveTimer(r.timerID)
		r.timerID = 0
	}
}

func (r *Room) SaveSnapshot(match *game.State) {
	if r.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	if err := r.deps.Snapshots.Save(ctx, r.Name, match); err != nil {
		r.log.Warnf("保存快照失败: %v", err)
	}
}

func (r *Room) DeleteSnapshot() {
	if r.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	if err := r.deps.Snapshots.Delete(ctx, r.Name); err != nil {
		r.log.Warnf("删除快照失败: %v", err)
	}
}

func (r *Room) Archive(match *game.State, outcome game.Terminal, startedAt time.Time) {
	if r.deps.Archiver == nil {
		return
	}
	r.deps.Archiver.ArchiveMatch(r.Name, match, outcome, startedAt, r.Now())
}

func (r *Room) Monitor() *monitor.Monitor {
	return r.deps.Monitor
}

// Destroy marks the room for shutdown once the current task returns.
func (r *Room) Destroy() {
	r.closing = true
}
