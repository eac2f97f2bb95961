package rpc

import (
	"context"
	netrpc "net/rpc"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/dominoserver/models"
	"github.com/wfunc/dominoserver/network"
	"github.com/wfunc/dominoserver/persistence"
	"github.com/wfunc/dominoserver/services"
)

type staticRooms []network.RoomSummary

func (s staticRooms) ListWaiting() []network.RoomSummary { return s }

func TestLobbyServiceOverTCP(t *testing.T) {
	db := persistence.NewMemoryDatabase()
	require.NoError(t, db.SaveMatchRecord(context.Background(), &models.MatchRecord{
		MatchID: "m1",
		Reason:  "emptied hand",
		Players: []models.Participant{
			{UserID: "a", Outcome: models.OutcomeWin},
			{UserID: "b", Seat: 1, Outcome: models.OutcomeLose},
		},
	}))
	rooms := staticRooms{
		{Name: "mesa", PlayerCount: 1, MaxPlayers: 4},
		{Name: "sala", PlayerCount: 2, MaxPlayers: 4, HasPassword: true},
	}

	srv, err := NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Register(ServiceName, NewLobbyService(rooms, services.NewHistoryService(db))))
	go srv.Start()
	t.Cleanup(srv.Stop)

	client, err := netrpc.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	var list ListRoomsReply
	require.NoError(t, client.Call(ServiceName+".ListRooms", &ListRoomsArgs{}, &list))
	assert.Equal(t, []network.RoomSummary(rooms), list.Rooms)

	var limited ListRoomsReply
	require.NoError(t, client.Call(ServiceName+".ListRooms", &ListRoomsArgs{Limit: 1}, &limited))
	assert.Len(t, limited.Rooms, 1)

	var stats PlayerStatsReply
	require.NoError(t, client.Call(ServiceName+".GetPlayerStats", &PlayerStatsArgs{UserID: "a"}, &stats))
	assert.Equal(t, models.PlayerStats{UserID: "a", TotalGames: 1, Wins: 1}, stats.Stats)

	err = client.Call(ServiceName+".GetPlayerStats", &PlayerStatsArgs{}, &stats)
	assert.EqualError(t, err, "userId is required")
}
