package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/monitor"
	"github.com/wfunc/dominoserver/network"
	"github.com/wfunc/dominoserver/room"
	"github.com/wfunc/dominoserver/session"
	"github.com/wfunc/dominoserver/state"
)

var ErrNotInRoom = errors.New("join a room to play")

// errLeftRoom ends the read loop of a connection whose seat was released.
var errLeftRoom = errors.New("left the room")

const tokenCookie = "token"

// Options 服务器依赖
type Options struct {
	Addr           string
	Authenticator  auth.Authenticator
	Rooms          *room.Manager
	Sessions       *session.Manager
	Monitor        *monitor.Monitor
	PingInterval   time.Duration
	MaxMissedPongs int
	// AllowedOrigins 为空时接受任意来源
	AllowedOrigins []string
}

// GameServer is the connection manager: it authenticates, upgrades and
// feeds every connection's messages into its room.
type GameServer struct {
	opts       Options
	upgrader   websocket.Upgrader
	httpServer *http.Server
	handlers   sync.WaitGroup
}

func NewGameServer(opts Options) *GameServer {
	s := &GameServer{opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 路由
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/lobby", s.handleLobby)
	mux.HandleFunc("GET /ws/game/{room}", s.handleGame)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes the live ones and waits for
// their handlers to finish.
func (s *GameServer) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.opts.Sessions.CloseAll()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true // 允许所有跨域请求
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// identify reads the token from the query, a bearer header or a cookie.
func (s *GameServer) identify(r *http.Request) (auth.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		if c, err := r.Cookie(tokenCookie); err == nil {
			token = c.Value
		}
	}
	return s.opts.Authenticator.Authenticate(token)
}

func (s *GameServer) upgrade(w http.ResponseWriter, r *http.Request) (auth.Identity, *network.WSConnection, bool) {
	ident, err := s.identify(r)
	if err != nil {
		logger.Log.Infof("Rejected connection from %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return auth.Identity{}, nil, false
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return auth.Identity{}, nil, false
	}
	return ident, network.NewWSConnection(ws), true
}

func (s *GameServer) handleLobby(w http.ResponseWriter, r *http.Request) {
	ident, conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.handlers.Add(1)
	defer s.handlers.Done()

	sess := session.NewSession(conn, ident.UserID, ident.Username, "")
	s.bind(sess)
	s.opts.Monitor.IncOnlinePlayers()
	logger.Log.Infof("Lobby observer %s (%s) connected from %s", ident.UserID, ident.Username, conn.RemoteAddr())

	defer func() {
		s.opts.Sessions.Unbind(sess)
		s.opts.Monitor.DecOnlinePlayers()
		conn.Close()
		logger.Log.Infof("Lobby observer %s disconnected", ident.UserID)
	}()

	sess.Send(network.NewRoomListMsg(s.opts.Rooms.ListWaiting()))
	conn.StartHeartbeat(s.opts.PingInterval, s.opts.MaxMissedPongs)

	s.readLoop(sess, func(action network.Action) error {
		if _, ok := action.(network.ListRooms); ok {
			return sess.Send(network.NewRoomListMsg(s.opts.Rooms.ListWaiting()))
		}
		return ErrNotInRoom
	})
}

func (s *GameServer) handleGame(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	password := r.URL.Query().Get("password")

	ident, conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	s.handlers.Add(1)
	defer s.handlers.Done()

	m := state.Member{ID: ident.UserID, Username: ident.Username}
	rm, err := s.join(r.Context(), name, m, password)
	if err != nil {
		logger.Log.Infof("User %s rejected from room %q: %v", m.ID, name, err)
		conn.Send(network.NewErrorMsg(err.Error()))
		conn.Close()
		return
	}

	sess := session.NewSession(conn, m.ID, m.Username, rm.Name)
	s.bind(sess)
	s.opts.Monitor.IncOnlinePlayers()
	logger.Log.Infof("User %s (%s) joined room %s from %s", m.ID, m.Username, rm.Name, conn.RemoteAddr())

	stop := make(chan struct{})
	defer func() {
		close(stop)
		if s.opts.Sessions.Unbind(sess) {
			if err := rm.Disconnect(context.Background(), m, true); err != nil && !errors.Is(err, room.ErrRoomClosed) {
				logger.Log.Warnf("Disconnect %s from room %s: %v", m.ID, rm.Name, err)
			}
		}
		s.opts.Monitor.DecOnlinePlayers()
		conn.Close()
		logger.Log.Infof("User %s left room %s", m.ID, rm.Name)
	}()

	// A room that shuts down takes its connections with it.
	go func() {
		select {
		case <-rm.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := rm.Sync(r.Context(), m); err != nil {
		return
	}
	conn.StartHeartbeat(s.opts.PingInterval, s.opts.MaxMissedPongs)

	s.readLoop(sess, func(action network.Action) error {
		if _, ok := action.(network.ListRooms); ok {
			return sess.Send(network.NewRoomListMsg(s.opts.Rooms.ListWaiting()))
		}
		if err := rm.Submit(context.Background(), m, action); err != nil {
			return err
		}
		if _, ok := action.(network.LeaveGame); ok {
			if member, err := rm.HasMember(context.Background(), m.ID); err == nil && !member {
				return errLeftRoom
			}
		}
		return nil
	})
}

// join fetches or creates the room. A room that closed between the lookup
// and the join is replaced once.
func (s *GameServer) join(ctx context.Context, name string, m state.Member, password string) (*room.Room, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		rm, _, err := s.opts.Rooms.GetOrCreate(name, password)
		if err != nil {
			return nil, err
		}
		err = rm.Join(ctx, m, password)
		if err == nil {
			return rm, nil
		}
		if !errors.Is(err, room.ErrRoomClosed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// bind makes sess the user's only connection. The replaced connection is
// closed; if it sat in another room, that room sees a disconnect.
func (s *GameServer) bind(sess *session.Session) {
	prev := s.opts.Sessions.Bind(sess)
	if prev == nil {
		return
	}
	logger.Log.Infof("User %s opened a new connection, closing session %s", sess.UserID, prev.ID)
	if prev.RoomName != "" && prev.RoomName != sess.RoomName {
		if old, err := s.opts.Rooms.Get(prev.RoomName); err == nil {
			m := state.Member{ID: prev.UserID, Username: prev.Username}
			if err := old.Disconnect(context.Background(), m, true); err != nil {
				logger.Log.Warnf("Disconnect %s from room %s: %v", m.ID, prev.RoomName, err)
			}
		}
	}
	prev.Send(network.NewErrorMsg("connected from another session"))
	prev.Close()
}

// readLoop decodes frames until the connection fails. Every rejected
// message is answered with one ERRO.
func (s *GameServer) readLoop(sess *session.Session, handle func(network.Action) error) {
	for {
		packet, err := sess.Conn.ReadPacket()
		if err != nil {
			var malformed *network.MalformedError
			if errors.As(err, &malformed) {
				sess.Send(network.NewErrorMsg(malformed.Error()))
				continue
			}
			return
		}
		sess.Touch()
		s.opts.Monitor.IncMessagesReceived()
		start := time.Now()

		action, err := network.DecodeAction(packet)
		if err == nil {
			err = handle(action)
		}
		s.opts.Monitor.ObserveMessageLatency(time.Since(start))

		if err != nil {
			if errors.Is(err, room.ErrRoomClosed) || errors.Is(err, errLeftRoom) {
				return
			}
			logger.Log.Debugf("User %s: %s rejected: %v", sess.UserID, packet.Type, err)
			sess.Send(network.NewErrorMsg(err.Error()))
		}
	}
}
