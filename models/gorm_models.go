// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatchRecord 对局记录表
type GormMatchRecord struct {
	gorm.Model
	MatchID        string `gorm:"uniqueIndex;not null"`
	RoomName       string `gorm:"index;not null"`
	WinnerID       string `gorm:"index"`
	WinnerUsername string
	Reason         string `gorm:"not null"`
	StartedAt      time.Time
	EndedAt        time.Time         `gorm:"index"`
	Participants   []GormParticipant `gorm:"foreignKey:MatchRecordID;constraint:OnDelete:CASCADE"`
}

func (GormMatchRecord) TableName() string { return "match_records" }

// GormParticipant 对局参与者表
type GormParticipant struct {
	gorm.Model
	MatchRecordID uint   `gorm:"index;not null"`
	UserID        string `gorm:"index;not null"`
	Username      string `gorm:"not null"`
	Seat          int
	Outcome       string `gorm:"not null"`
	Points        int
}

func (GormParticipant) TableName() string { return "match_participants" }

// NewGormMatchRecord 转换为表结构
func NewGormMatchRecord(r *MatchRecord) *GormMatchRecord {
	g := &GormMatchRecord{
		MatchID:        r.MatchID,
		RoomName:       r.RoomName,
		WinnerID:       r.WinnerID,
		WinnerUsername: r.WinnerUsername,
		Reason:         r.Reason,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		Participants:   make([]GormParticipant, len(r.Players)),
	}
	for i, p := range r.Players {
		g.Participants[i] = GormParticipant{
			UserID:   p.UserID,
			Username: p.Username,
			Seat:     p.Seat,
			Outcome:  p.Outcome,
			Points:   p.Points,
		}
	}
	return g
}

// Record 转换回领域结构
func (g *GormMatchRecord) Record() *MatchRecord {
	r := &MatchRecord{
		MatchID:        g.MatchID,
		RoomName:       g.RoomName,
		WinnerID:       g.WinnerID,
		WinnerUsername: g.WinnerUsername,
		Reason:         g.Reason,
		StartedAt:      g.StartedAt,
		EndedAt:        g.EndedAt,
		Players:        make([]Participant, len(g.Participants)),
	}
	for i, p := range g.Participants {
		r.Players[i] = Participant{
			UserID:   p.UserID,
			Username: p.Username,
			Seat:     p.Seat,
			Outcome:  p.Outcome,
			Points:   p.Points,
		}
	}
	return r
}
