// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/dominoserver/models"
)

const queryTimeout = 5 * time.Second

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            match_id VARCHAR(64) UNIQUE NOT NULL,
            room_name VARCHAR(255) NOT NULL,
            winner_id VARCHAR(255),
            winner_username VARCHAR(255),
            reason VARCHAR(64) NOT NULL,
            started_at TIMESTAMPTZ,
            ended_at TIMESTAMPTZ NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_participants (
            id SERIAL PRIMARY KEY,
            match_record_id INTEGER NOT NULL REFERENCES match_records(id) ON DELETE CASCADE,
            user_id VARCHAR(255) NOT NULL,
            username VARCHAR(255) NOT NULL,
            seat INTEGER NOT NULL,
            outcome VARCHAR(16) NOT NULL,
            points INTEGER NOT NULL DEFAULT 0
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_match_records_room_name ON match_records(room_name);
        CREATE INDEX IF NOT EXISTS idx_match_records_ended_at ON match_records(ended_at);
        CREATE INDEX IF NOT EXISTS idx_match_participants_user_id ON match_participants(user_id);
    `)
	return err
}

// SaveMatchRecord 保存对局记录
func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, record *models.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO match_records (match_id, room_name, winner_id, winner_username, reason, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `,
		record.MatchID, record.RoomName,
		nullString(record.WinnerID), nullString(record.WinnerUsername),
		record.Reason, record.StartedAt, record.EndedAt,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: %s", ErrDuplicateMatch, record.MatchID)
		}
		return err
	}

	for _, pl := range record.Players {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO match_participants (match_record_id, user_id, username, seat, outcome, points)
            VALUES ($1, $2, $3, $4, $5, $6)
        `, id, pl.UserID, pl.Username, pl.Seat, pl.Outcome, pl.Points)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadMatchRecord 加载对局记录
func (p *PostgreSQL) LoadMatchRecord(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		id               int64
		rec              = &models.MatchRecord{MatchID: matchID}
		winnerID, winner sql.NullString
		startedAt        sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
        SELECT id, room_name, winner_id, winner_username, reason, started_at, ended_at
        FROM match_records WHERE match_id = $1
    `, matchID).Scan(&id, &rec.RoomName, &winnerID, &winner, &rec.Reason, &startedAt, &rec.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.WinnerID = winnerID.String
	rec.WinnerUsername = winner.String
	rec.StartedAt = startedAt.Time

	rows, err := p.db.QueryContext(ctx, `
        SELECT user_id, username, seat, outcome, points
        FROM match_participants WHERE match_record_id = $1 ORDER BY seat
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pl models.Participant
		if err := rows.Scan(&pl.UserID, &pl.Username, &pl.Seat, &pl.Outcome, &pl.Points); err != nil {
			return nil, err
		}
		rec.Players = append(rec.Players, pl)
	}
	return rec, rows.Err()
}

// GetPlayerStats 查询玩家战绩
func (p *PostgreSQL) GetPlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total, wins, draws int
	err := p.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN outcome = $2 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN outcome = $3 THEN 1 ELSE 0 END), 0)
        FROM match_participants
        WHERE user_id = $1
    `, userID, models.OutcomeWin, models.OutcomeDraw).Scan(&total, &wins, &draws)
	if err != nil {
		return nil, err
	}
	return statsFrom(userID, total, wins, draws), nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
