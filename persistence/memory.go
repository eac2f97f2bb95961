package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/wfunc/dominoserver/models"
)

// MemoryDatabase keeps match history in process. Used when no database is
// configured and in tests.
type MemoryDatabase struct {
	mutex   sync.RWMutex
	records map[string]*models.MatchRecord
	order   []string
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{records: make(map[string]*models.MatchRecord)}
}

func (m *MemoryDatabase) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.records[record.MatchID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateMatch, record.MatchID)
	}
	cp := *record
	cp.Players = append([]models.Participant(nil), record.Players...)
	m.records[record.MatchID] = &cp
	m.order = append(m.order, record.MatchID)
	return nil
}

func (m *MemoryDatabase) LoadMatchRecord(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rec, ok := m.records[matchID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	cp.Players = append([]models.Participant(nil), rec.Players...)
	return &cp, nil
}

func (m *MemoryDatabase) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var total, wins, draws int
	for _, id := range m.order {
		for _, p := range m.records[id].Players {
			if p.UserID != userID {
				continue
			}
			total++
			switch p.Outcome {
			case models.OutcomeWin:
				wins++
			case models.OutcomeDraw:
				draws++
			}
		}
	}
	return statsFrom(userID, total, wins, draws), nil
}

// Len 已保存的对局数
func (m *MemoryDatabase) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.order)
}

func (m *MemoryDatabase) Close() error { return nil }
