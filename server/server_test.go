package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/broadcast"
	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/monitor"
	"github.com/wfunc/dominoserver/room"
	"github.com/wfunc/dominoserver/session"
	"github.com/wfunc/dominoserver/timer"
)

const secret = "test-secret"

type testServer struct {
	t     *testing.T
	http  *httptest.Server
	auth  *auth.JWTAuthenticator
	rooms *room.Manager
}

func newTestServer(t *testing.T, maxPlayers int) *testServer {
	t.Helper()
	rules := game.DefaultRules()
	rules.MaxPlayers = maxPlayers

	sessions := session.NewManager()
	timers := timer.NewTimerManager(10 * time.Millisecond)
	mon := monitor.NewMonitor("test", nil)
	rooms := room.NewRoomManager(room.Deps{
		Broadcaster:  broadcast.NewSessionBroadcaster(sessions),
		Timers:       timers,
		Monitor:      mon,
		Rules:        rules,
		TurnDuration: time.Minute,
		Deck:         domino.FullSet,
	})
	authn := auth.NewJWTAuthenticator(secret)

	gs := NewGameServer(Options{
		Authenticator: authn,
		Rooms:         rooms,
		Sessions:      sessions,
		Monitor:       mon,
	})
	srv := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		srv.Close()
		sessions.CloseAll()
		rooms.CloseAll()
		timers.Stop()
	})
	return &testServer{t: t, http: srv, auth: authn, rooms: rooms}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) url(path string) string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + path
}

func (s *testServer) token(id string) string {
	tok, err := s.auth.Issue(auth.Identity{UserID: id, Username: "name-" + id}, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) dial(path, userID string) *client {
	s.t.Helper()
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url(path+sep+"token="+s.token(userID)), nil)
	require.NoError(s.t, err)
	s.t.Cleanup(func() { conn.Close() })
	return &client{t: s.t, conn: conn}
}

func (c *client) send(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// next reads until a message of typ arrives.
func (c *client) next(typ string) map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", typ)
		var msg map[string]any
		require.NoError(c.t, json.Unmarshal(data, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

// closed reports whether the server closed the connection.
func (c *client) closed() bool {
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			var ne net.Error
			return !errors.As(err, &ne) || !ne.Timeout()
		}
	}
}

func TestUnauthorizedConnectionIsRejected(t *testing.T) {
	s := newTestServer(t, 2)

	_, resp, err := websocket.DefaultDialer.Dial(s.url("/ws/game/mesa"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(s.url("/ws/lobby?token=garbage"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenFromHeader(t *testing.T) {
	s := newTestServer(t, 2)
	header := http.Header{"Authorization": {"Bearer " + s.token("a")}}
	conn, _, err := websocket.DefaultDialer.Dial(s.url("/ws/lobby"), header)
	require.NoError(t, err)
	defer conn.Close()
	c := &client{t: t, conn: conn}
	assert.NotNil(t, c.next("ROOM_LIST"))
}

func TestLobbyObserversSeeRoomList(t *testing.T) {
	s := newTestServer(t, 2)
	lobby := s.dial("/ws/lobby", "watcher")
	initial := lobby.next("ROOM_LIST")
	assert.Empty(t, initial["rooms"])

	a := s.dial("/ws/game/mesa", "a")
	a.next("ROOM_STATE")

	list := lobby.next("ROOM_LIST")
	rooms := list["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, "mesa", rooms[0].(map[string]any)["name"])

	lobby.send(`{"type":"LIST_ROOMS"}`)
	assert.Len(t, lobby.next("ROOM_LIST")["rooms"], 1)

	lobby.send(`{"type":"PASS_TURN"}`)
	assert.Equal(t, ErrNotInRoom.Error(), lobby.next("ERRO")["message"])
}

func TestTwoPlayersStartAndPlay(t *testing.T) {
	s := newTestServer(t, 2)
	a := s.dial("/ws/game/mesa", "a")
	assert.Equal(t, "a", a.next("ROOM_STATE")["hostId"])
	b := s.dial("/ws/game/mesa", "b")
	state := b.next("ROOM_STATE")
	assert.Equal(t, "b", state["myId"])
	assert.Equal(t, 2.0, state["playerCount"])

	a.send(`{"type":"PLAYER_READY"}`)
	b.send(`{"type":"PLAYER_READY"}`)

	startA := a.next("JOGO_INICIADO")
	assert.Len(t, startA["hand"], 7)
	assert.Equal(t, "a", startA["turn"])
	assert.Len(t, b.next("JOGO_INICIADO")["hand"], 7)

	b.send(`{"type":"PASS_TURN"}`)
	assert.Equal(t, game.ErrNotYourTurn.Error(), b.next("ERRO")["message"])

	a.send(`{"type":"PLAY_PIECE","piece":{"a":0,"b":0}}`)
	assert.Len(t, a.next("UPDATE_HAND")["yourNewHand"], 6)
	update := b.next("ESTADO_ATUALIZADO")
	assert.Equal(t, "b", update["turn"])
	assert.Len(t, update["board"], 1)
	assert.Len(t, update["activeEnds"], 2)

	b.send(`{"type":"PLAY_PIECE","piece":{"a":0,"b":0}}`)
	assert.Equal(t, game.ErrTileNotHeld.Error(), b.next("ERRO")["message"])
}

func TestMalformedMessagesGetErrors(t *testing.T) {
	s := newTestServer(t, 2)
	a := s.dial("/ws/game/mesa", "a")
	a.next("ROOM_STATE")

	a.send(`not json`)
	assert.Contains(t, a.next("ERRO")["message"], "malformed")

	a.send(`{"type":"DANCE"}`)
	assert.Contains(t, a.next("ERRO")["message"], "DANCE")

	a.send(`{"type":"PLAY_PIECE","piece":"six"}`)
	a.next("ERRO")

	// Still connected.
	a.send(`{"type":"PLAYER_READY"}`)
	assert.Equal(t, []any{"a"}, a.next("ROOM_STATE")["readyPlayers"])
}

func TestNewConnectionReplacesOld(t *testing.T) {
	s := newTestServer(t, 2)
	first := s.dial("/ws/game/mesa", "a")
	first.next("ROOM_STATE")

	second := s.dial("/ws/game/mesa", "a")
	msg := second.next("ROOM_STATE")
	assert.Equal(t, 1.0, msg["playerCount"], "the seat is kept")

	assert.Equal(t, "connected from another session", first.next("ERRO")["message"])
	assert.True(t, first.closed())
}

func TestDisconnectDuringMatchEndsIt(t *testing.T) {
	s := newTestServer(t, 2)
	a := s.dial("/ws/game/mesa", "a")
	a.next("ROOM_STATE")
	b := s.dial("/ws/game/mesa", "b")
	b.next("ROOM_STATE")
	a.send(`{"type":"PLAYER_READY"}`)
	b.send(`{"type":"PLAYER_READY"}`)
	a.next("JOGO_INICIADO")
	b.next("JOGO_INICIADO")

	require.NoError(t, b.conn.Close())

	gone := a.next("PLAYER_DISCONNECTED")
	assert.Equal(t, "b", gone["userId"])
	over := a.next("JOGO_TERMINADO")
	assert.Equal(t, "a", over["winnerId"])
	assert.Equal(t, game.ReasonOpponentsLeft, over["reason"])
	assert.Equal(t, false, over["canRematch"])

	// Back in the lobby state with one member.
	assert.Equal(t, 1.0, a.next("ROOM_STATE")["playerCount"])
}

// stateWith reads ROOM_STATE messages until one reports count players.
func (c *client) stateWith(count float64) map[string]any {
	c.t.Helper()
	for {
		msg := c.next("ROOM_STATE")
		if msg["playerCount"] == count {
			return msg
		}
	}
}

func TestLobbyLeaveClosesConnection(t *testing.T) {
	s := newTestServer(t, 4)
	a := s.dial("/ws/game/mesa", "a")
	a.next("ROOM_STATE")
	b := s.dial("/ws/game/mesa", "b")
	b.next("ROOM_STATE")
	a.stateWith(2)

	b.send(`{"type":"LEAVE_GAME"}`)
	assert.True(t, b.closed())

	left := a.stateWith(1)
	assert.Len(t, left["players"], 1)
	assert.Equal(t, "a", left["hostId"])

	// The room still runs for the remaining member.
	a.send(`{"type":"PLAYER_READY"}`)
	assert.Equal(t, []any{"a"}, a.next("ROOM_STATE")["readyPlayers"])
}

func TestJoinRejections(t *testing.T) {
	s := newTestServer(t, 2)
	owner := s.dial("/ws/game/vip?password=abc", "a")
	assert.Equal(t, true, owner.next("ROOM_STATE")["hasPassword"])

	wrong := s.dial("/ws/game/vip?password=nope", "b")
	assert.Equal(t, room.ErrWrongPassword.Error(), wrong.next("ERRO")["message"])
	assert.True(t, wrong.closed())

	b := s.dial("/ws/game/vip?password=abc", "b")
	b.next("ROOM_STATE")

	full := s.dial("/ws/game/vip?password=abc", "c")
	assert.Contains(t, full.next("ERRO")["message"], "full")
}

func TestShutdownClosesConnections(t *testing.T) {
	s := newTestServer(t, 2)
	gs := NewGameServer(Options{
		Addr:          "127.0.0.1:0",
		Authenticator: s.auth,
		Rooms:         s.rooms,
		Sessions:      session.NewManager(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, gs.Shutdown(ctx))
}
