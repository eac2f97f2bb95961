package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/models"
	"github.com/wfunc/dominoserver/network"
)

// ServiceName is the name LobbyService is registered under.
const ServiceName = "Lobby"

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener  net.Listener
	address   string
	rpcServer *rpc.Server
}

// NewServer listens on addr. Services are added with Register before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:  listener,
		address:   listener.Addr().String(),
		rpcServer: rpc.NewServer(),
	}, nil
}

// Register exposes svc's exported RPC methods under name.
func (s *Server) Register(name string, svc any) error {
	return s.rpcServer.RegisterName(name, svc)
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpcServer.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomLister reads the public room listing.
type RoomLister interface {
	ListWaiting() []network.RoomSummary
}

// StatsProvider serves archived player statistics.
type StatsProvider interface {
	PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
}

// LobbyService is the struct that exposes RPC methods.
type LobbyService struct {
	rooms RoomLister
	stats StatsProvider
}

func NewLobbyService(rooms RoomLister, stats StatsProvider) *LobbyService {
	return &LobbyService{rooms: rooms, stats: stats}
}

// ListRoomsArgs limits the listing; zero means every room.
type ListRoomsArgs struct {
	Limit int
}

type ListRoomsReply struct {
	Rooms []network.RoomSummary
}

// ListRooms returns the rooms waiting for players.
func (s *LobbyService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	rooms := s.rooms.ListWaiting()
	if args.Limit > 0 && len(rooms) > args.Limit {
		rooms = rooms[:args.Limit]
	}
	reply.Rooms = rooms
	return nil
}

type PlayerStatsArgs struct {
	UserID string
}

type PlayerStatsReply struct {
	Stats models.PlayerStats
}

// GetPlayerStats is an RPC method to get a player's record.
// It must follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
func (s *LobbyService) GetPlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	if args.UserID == "" {
		return errors.New("userId is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := s.stats.PlayerStats(ctx, args.UserID)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}
