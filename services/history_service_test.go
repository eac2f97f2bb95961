package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/models"
	"github.com/wfunc/dominoserver/persistence"
)

func finished(t *testing.T) *game.State {
	t.Helper()
	players := []game.Player{{ID: "a", Username: "ana"}, {ID: "b", Username: "bia"}, {ID: "c", Username: "cai"}}
	res, err := game.Deal(players, domino.FullSet(), game.DefaultRules())
	require.NoError(t, err)
	left, err := res.State.Leave("c", time.UnixMilli(5), false)
	require.NoError(t, err)
	return left.State
}

func TestNewMatchRecord(t *testing.T) {
	match := finished(t)
	winner := match.Players[0]
	start, end := time.Unix(10, 0), time.Unix(70, 0)

	rec := NewMatchRecord("mesa", match, game.Terminal{Winner: &winner, Reason: game.ReasonEmptiedHand}, start, end)

	_, err := uuid.Parse(rec.MatchID)
	assert.NoError(t, err)
	assert.Equal(t, "mesa", rec.RoomName)
	assert.Equal(t, "a", rec.WinnerID)
	assert.Equal(t, "ana", rec.WinnerUsername)
	assert.Equal(t, time.Minute, rec.Duration())

	require.Len(t, rec.Players, 3)
	assert.Equal(t, models.OutcomeWin, rec.Players[0].Outcome)
	assert.Equal(t, models.OutcomeLose, rec.Players[1].Outcome)
	assert.Equal(t, models.OutcomeLeft, rec.Players[2].Outcome)
	assert.Equal(t, 2, rec.Players[2].Seat)
	assert.Equal(t, match.HandPoints("b"), rec.Players[1].Points)
}

func TestNewMatchRecordDraw(t *testing.T) {
	match := finished(t)
	rec := NewMatchRecord("mesa", match, game.Terminal{Reason: game.ReasonDraw}, time.Time{}, time.Unix(1, 0))

	assert.Empty(t, rec.WinnerID)
	assert.Equal(t, models.OutcomeDraw, rec.Players[0].Outcome)
	assert.Equal(t, models.OutcomeDraw, rec.Players[1].Outcome)
	assert.Equal(t, models.OutcomeLeft, rec.Players[2].Outcome)
	assert.Zero(t, rec.Duration())
}

func TestArchiveAsyncAndStats(t *testing.T) {
	db := persistence.NewMemoryDatabase()
	svc := NewHistoryService(db)
	match := finished(t)
	winner := match.Players[1]

	rec := NewMatchRecord("mesa", match, game.Terminal{Winner: &winner, Reason: game.ReasonFewestPoints}, time.Unix(0, 0), time.Unix(9, 0))
	svc.ArchiveAsync(rec)
	// A duplicate is only logged.
	svc.ArchiveAsync(rec)
	svc.Wait()

	assert.Equal(t, 1, db.Len())
	stats, err := svc.PlayerStats(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.TotalGames)

	stored, err := svc.Match(context.Background(), rec.MatchID)
	require.NoError(t, err)
	assert.Equal(t, "bia", stored.WinnerUsername)
}
