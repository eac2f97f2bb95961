// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/dominoserver/models"
)

// Database 对局历史存储
type Database interface {
	SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error
	LoadMatchRecord(ctx context.Context, matchID string) (*models.MatchRecord, error)
	GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateMatch = errors.New("match already archived")
)

// statsFrom 根据计数补齐输场
func statsFrom(userID string, total, wins, draws int) *models.PlayerStats {
	return &models.PlayerStats{
		UserID:     userID,
		TotalGames: total,
		Wins:       wins,
		Draws:      draws,
		Losses:     total - wins - draws,
	}
}
