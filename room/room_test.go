package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/monitor"
	"github.com/wfunc/dominoserver/network"
	"github.com/wfunc/dominoserver/state"
	"github.com/wfunc/dominoserver/timer"
)

// recorder is a Broadcaster that keeps every delivered message.
type recorder struct {
	mu    sync.Mutex
	users map[string][]map[string]any
	lobby []map[string]any
}

func newRecorder() *recorder {
	return &recorder{users: map[string][]map[string]any{}}
}

func decode(msg any) map[string]any {
	data, _ := json.Marshal(msg)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

func (r *recorder) SendToUser(roomName, userID string, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = append(r.users[userID], decode(msg))
	return nil
}

func (r *recorder) BroadcastToRoom(roomName string, userIDs []string, msg any) error {
	for _, id := range userIDs {
		_ = r.SendToUser(roomName, id, msg)
	}
	return nil
}

func (r *recorder) BroadcastToLobby(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lobby = append(r.lobby, decode(msg))
	return nil
}

func (r *recorder) last(userID, typ string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.users[userID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i]["type"] == typ {
			return msgs[i]
		}
	}
	return nil
}

func (r *recorder) find(userID, typ string, match func(map[string]any) bool) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.users[userID] {
		if msg["type"] == typ && match(msg) {
			return msg
		}
	}
	return nil
}

func (r *recorder) lastLobby() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lobby) == 0 {
		return nil
	}
	return r.lobby[len(r.lobby)-1]
}

type memSnapshots struct {
	mu      sync.Mutex
	saved   map[string]*game.State
	saves   int
	deletes int
}

func (s *memSnapshots) Save(ctx context.Context, room string, match *game.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[room] = match.Clone()
	s.saves++
	return nil
}

func (s *memSnapshots) Load(ctx context.Context, room string) (*game.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[room], nil
}

func (s *memSnapshots) Delete(ctx context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, room)
	s.deletes++
	return nil
}

type archived struct {
	room    string
	outcome game.Terminal
}

type memArchiver struct {
	mu      sync.Mutex
	matches []archived
}

func (a *memArchiver) ArchiveMatch(room string, match *game.State, outcome game.Terminal, startedAt, endedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.matches = append(a.matches, archived{room: room, outcome: outcome})
}

type harness struct {
	manager  *Manager
	rec      *recorder
	snaps    *memSnapshots
	archive  *memArchiver
	monitor  *monitor.Monitor
	turnTime time.Duration
}

func newHarness(t *testing.T, maxPlayers int, turn time.Duration) *harness {
	t.Helper()
	rules := game.DefaultRules()
	rules.MaxPlayers = maxPlayers

	timers := timer.NewTimerManager(5 * time.Millisecond)
	h := &harness{
		rec:      newRecorder(),
		snaps:    &memSnapshots{saved: map[string]*game.State{}},
		archive:  &memArchiver{},
		monitor:  monitor.NewMonitor("test", nil),
		turnTime: turn,
	}
	h.manager = NewRoomManager(Deps{
		Broadcaster:  h.rec,
		Timers:       timers,
		Snapshots:    h.snaps,
		Archiver:     h.archive,
		Monitor:      h.monitor,
		Rules:        rules,
		TurnDuration: turn,
		Deck:         domino.FullSet,
	})
	t.Cleanup(func() {
		h.manager.CloseAll()
		timers.Stop()
	})
	return h
}

func member(id string) state.Member {
	return state.Member{ID: id, Username: "name-" + id}
}

func waitClosed(t *testing.T, r *Room) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room did not close")
	}
}

func TestRoomManager_GetOrCreate(t *testing.T) {
	h := newHarness(t, 2, time.Minute)

	r, created, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusWaiting, r.Status())

	again, created, err := h.manager.GetOrCreate(" mesa ", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, r, again)

	got, err := h.manager.Get("mesa")
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = h.manager.Get("nowhere")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, _, err = h.manager.GetOrCreate("   ", "")
	assert.ErrorIs(t, err, ErrInvalidRoomName)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.monitor.Metrics().ActiveRooms))
}

func TestRoomManager_HashesOutsideTheLock(t *testing.T) {
	h := newHarness(t, 4, time.Minute)
	existing, _, err := h.manager.GetOrCreate("aberta", "")
	require.NoError(t, err)

	hashing := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	h.manager.hash = func(password string) (string, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(hashing)
			<-release
		}
		return "hash:" + password, nil
	}

	type result struct {
		r       *Room
		created bool
	}
	out := make(chan result, 2)
	create := func() {
		r, created, err := h.manager.GetOrCreate("fechada", "segredo")
		assert.NoError(t, err)
		out <- result{r, created}
	}
	go create()
	<-hashing

	// The registry stays readable while a password is being hashed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := h.manager.Get("aberta")
		assert.NoError(t, err)
		assert.Same(t, existing, got)
		assert.Len(t, h.manager.ListWaiting(), 1)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager blocked on password hashing")
	}

	go create()
	second := <-out
	close(release)
	first := <-out

	assert.Same(t, first.r, second.r)
	assert.NotEqual(t, first.created, second.created)
	assert.True(t, first.r.Summary().HasPassword)
	assert.Equal(t, 2, h.manager.Count())
}

func TestRoom_HasMember(t *testing.T) {
	h := newHarness(t, 4, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))
	require.NoError(t, r.Join(ctx, member("b"), ""))

	ok, err := r.HasMember(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Submit(ctx, member("b"), network.LeaveGame{}))
	ok, err = r.HasMember(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Submit(ctx, member("b"), network.PlayerReady{}), game.ErrPlayerNotInMatch)
	assert.Equal(t, 1, r.Summary().PlayerCount)
}

func TestRoom_JoinBroadcastsRoomState(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)

	require.NoError(t, r.Join(ctx, member("a"), ""))
	require.NoError(t, r.Join(ctx, member("b"), ""))

	msg := h.rec.last("a", network.MsgRoomState)
	require.NotNil(t, msg)
	assert.Equal(t, "a", msg["myId"])
	assert.Equal(t, "a", msg["hostId"])
	assert.Equal(t, 2.0, msg["playerCount"])
	assert.Equal(t, "waiting", msg["status"])
	assert.Len(t, msg["players"], 2)
	assert.Equal(t, "b", h.rec.last("b", network.MsgRoomState)["myId"])

	assert.ErrorIs(t, r.Join(ctx, member("c"), ""), state.ErrRoomFull)
	assert.Equal(t, 2, r.Summary().PlayerCount)

	list := h.rec.lastLobby()
	require.NotNil(t, list)
	assert.Equal(t, network.MsgRoomList, list["type"])
	rooms := list["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2.0, rooms[0].(map[string]any)["playerCount"])
}

func TestRoom_PasswordGate(t *testing.T) {
	h := newHarness(t, 4, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("fechada", "segredo")
	require.NoError(t, err)
	assert.True(t, r.Summary().HasPassword)

	require.NoError(t, r.Join(ctx, member("a"), "segredo"))
	assert.ErrorIs(t, r.Join(ctx, member("b"), "errado"), ErrWrongPassword)
	assert.Equal(t, 1, r.Summary().PlayerCount)

	// Members come back without the password.
	require.NoError(t, r.Join(ctx, member("a"), ""))
	require.NoError(t, r.Join(ctx, member("b"), "segredo"))
	assert.Equal(t, true, h.rec.last("b", network.MsgRoomState)["hasPassword"])
}

func TestRoom_MatchLifecycle(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))
	require.NoError(t, r.Join(ctx, member("b"), ""))

	require.NoError(t, r.Submit(ctx, member("a"), network.PlayerReady{}))
	require.NoError(t, r.Submit(ctx, member("b"), network.PlayerReady{}))

	assert.Equal(t, StatusPlaying, r.Status())
	assert.Empty(t, h.manager.ListWaiting())
	started := h.rec.last("a", network.MsgGameStarted)
	require.NotNil(t, started)
	assert.Len(t, started["hand"], 7)
	assert.Equal(t, "a", started["turn"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.monitor.Metrics().MatchesStarted))

	h.snaps.mu.Lock()
	assert.Contains(t, h.snaps.saved, "mesa")
	h.snaps.mu.Unlock()

	assert.ErrorIs(t, r.Join(ctx, member("c"), ""), state.ErrMatchInProgress)
	assert.ErrorIs(t, r.Submit(ctx, member("b"), network.PassTurn{}), game.ErrNotYourTurn)

	require.NoError(t, r.Submit(ctx, member("b"), network.LeaveGame{}))

	over := h.rec.last("a", network.MsgGameOver)
	require.NotNil(t, over)
	assert.Equal(t, "a", over["winnerId"])
	assert.Equal(t, game.ReasonOpponentsLeft, over["reason"])

	h.archive.mu.Lock()
	require.Len(t, h.archive.matches, 1)
	assert.Equal(t, "mesa", h.archive.matches[0].room)
	h.archive.mu.Unlock()

	h.snaps.mu.Lock()
	assert.NotContains(t, h.snaps.saved, "mesa")
	h.snaps.mu.Unlock()

	assert.Equal(t, StatusWaiting, r.Status())
	assert.Equal(t, 1, r.Summary().PlayerCount)
	assert.Len(t, h.manager.ListWaiting(), 1)
}

func TestRoom_TurnTimeoutAutoPlays(t *testing.T) {
	h := newHarness(t, 2, 30*time.Millisecond)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))
	require.NoError(t, r.Join(ctx, member("b"), ""))
	require.NoError(t, r.Submit(ctx, member("a"), network.PlayerReady{}))
	require.NoError(t, r.Submit(ctx, member("b"), network.PlayerReady{}))

	// a's first tile is [0|0]; the timeout plays it and hands the turn to b.
	require.Eventually(t, func() bool {
		return h.rec.find("b", network.MsgStateUpdated, func(msg map[string]any) bool {
			board, _ := msg["board"].([]any)
			return len(board) == 1 && msg["turn"] == "b"
		}) != nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, testutil.ToFloat64(h.monitor.Metrics().TurnTimeouts), 1.0)
	hand := h.rec.find("a", network.MsgUpdateHand, func(msg map[string]any) bool {
		tiles, _ := msg["yourNewHand"].([]any)
		return len(tiles) == 6
	})
	assert.NotNil(t, hand)
}

func TestRoom_DestroyedWhenEmpty(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))

	require.NoError(t, r.Disconnect(ctx, member("a"), true))
	waitClosed(t, r)

	assert.Equal(t, StatusClosed, r.Status())
	assert.Equal(t, 0, h.manager.Count())
	_, err = h.manager.Get("mesa")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, r.Join(ctx, member("a"), ""), ErrRoomClosed)

	fresh, created, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, r, fresh)
}

func TestRoom_InvariantViolationTearsDown(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))

	err = r.call(ctx, func() error { return fmt.Errorf("%w: tile count", game.ErrInvariant) })
	assert.ErrorIs(t, err, game.ErrInvariant)
	waitClosed(t, r)

	assert.NotNil(t, h.rec.last("a", network.MsgError))
	assert.Equal(t, 0, h.manager.Count())
}

func TestRoom_PanicTearsDown(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)

	err = r.call(ctx, func() error { panic("boom") })
	assert.ErrorIs(t, err, game.ErrInvariant)
	waitClosed(t, r)
}

func TestRoom_RejectedActionsAreCounted(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	ctx := context.Background()
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)
	require.NoError(t, r.Join(ctx, member("a"), ""))

	assert.ErrorIs(t, r.Submit(ctx, member("a"), network.PassTurn{}), state.ErrNoMatch)
	assert.ErrorIs(t, r.Submit(ctx, member("a"), network.StartGame{}), state.ErrNotAllReady)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.monitor.Metrics().RejectedActions.WithLabelValues(network.MsgPassTurn)))
}

func TestRoom_CancelledContext(t *testing.T) {
	h := newHarness(t, 2, time.Minute)
	r, _, err := h.manager.GetOrCreate("mesa", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Either the task was admitted or the context won; both are fine, but
	// a refused admission must report the context error.
	if err := r.Sync(ctx, member("a")); err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
