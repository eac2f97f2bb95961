// models/models.go
package models

import (
	"time"
)

// 参与者结果
const (
	OutcomeWin  = "win"
	OutcomeLose = "lose"
	OutcomeDraw = "draw"
	OutcomeLeft = "left"
)

// MatchRecord 对局记录
type MatchRecord struct {
	MatchID        string        `json:"match_id"`
	RoomName       string        `json:"room_name"`
	WinnerID       string        `json:"winner_id,omitempty"`
	WinnerUsername string        `json:"winner_username,omitempty"`
	Reason         string        `json:"reason"`
	Players        []Participant `json:"players"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
}

// Participant 对局中的一名玩家
type Participant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	Outcome  string `json:"outcome"` // win/lose/draw/left
	Points   int    `json:"points"`  // 结束时手牌点数
}

// Duration 对局时长
func (r MatchRecord) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	UserID     string `json:"userId"`
	TotalGames int    `json:"totalGames"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
}
