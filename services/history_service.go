// services/history_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/dominoserver/game"
	"github.com/wfunc/dominoserver/logger"
	"github.com/wfunc/dominoserver/models"
	"github.com/wfunc/dominoserver/persistence"
)

const archiveTimeout = 10 * time.Second

// HistoryService 归档结束的对局并提供战绩查询
type HistoryService struct {
	db persistence.Database
	wg sync.WaitGroup
}

func NewHistoryService(db persistence.Database) *HistoryService {
	return &HistoryService{db: db}
}

// NewMatchRecord 根据终局状态生成对局记录
func NewMatchRecord(room string, match *game.State, outcome game.Terminal, startedAt, endedAt time.Time) *models.MatchRecord {
	rec := &models.MatchRecord{
		MatchID:   uuid.NewString(),
		RoomName:  room,
		Reason:    outcome.Reason,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Players:   make([]models.Participant, len(match.Players)),
	}
	if w := outcome.Winner; w != nil {
		rec.WinnerID = w.ID
		rec.WinnerUsername = w.Username
	}
	for i, p := range match.Players {
		rec.Players[i] = models.Participant{
			UserID:   p.ID,
			Username: p.Username,
			Seat:     i,
			Outcome:  participantOutcome(p, outcome),
			Points:   match.HandPoints(p.ID),
		}
	}
	return rec
}

func participantOutcome(p game.Player, outcome game.Terminal) string {
	switch {
	case outcome.Winner != nil && outcome.Winner.ID == p.ID:
		return models.OutcomeWin
	case !p.Active():
		return models.OutcomeLeft
	case outcome.Winner == nil:
		return models.OutcomeDraw
	default:
		return models.OutcomeLose
	}
}

// Archive 同步写入
func (s *HistoryService) Archive(ctx context.Context, rec *models.MatchRecord) error {
	return s.db.SaveMatchRecord(ctx, rec)
}

// ArchiveAsync 后台写入, 失败只记录日志
func (s *HistoryService) ArchiveAsync(rec *models.MatchRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.Archive(ctx, rec); err != nil {
			logger.Log.Errorf("归档对局 %s (房间 %s) 失败: %v", rec.MatchID, rec.RoomName, err)
			return
		}
		logger.Log.Infof("对局 %s 已归档: %s", rec.MatchID, rec.Reason)
	}()
}

// Wait 等待所有后台归档完成
func (s *HistoryService) Wait() {
	s.wg.Wait()
}

func (s *HistoryService) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	return s.db.GetPlayerStats(ctx, userID)
}

func (s *HistoryService) Match(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	return s.db.LoadMatchRecord(ctx, matchID)
}

// ArchiveMatch 实现 room.Archiver
func (s *HistoryService) ArchiveMatch(room string, match *game.State, outcome game.Terminal, startedAt, endedAt time.Time) {
	s.ArchiveAsync(NewMatchRecord(room, match, outcome, startedAt, endedAt))
}
