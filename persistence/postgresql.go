// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
	"github.com/wfunc/meiro/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// DSN builds a lib/pq keyword/value connection string.
func DSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", DSN(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 初始化表结构
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，与 GORM 模型使用相同的表
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            room_id TEXT UNIQUE NOT NULL,
            phase TEXT NOT NULL,
            state BYTEA NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            record_id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            round INTEGER DEFAULT 0,
            maze_size INTEGER NOT NULL,
            seed BIGINT DEFAULT 0,
            reason TEXT NOT NULL,
            score INTEGER DEFAULT 0,
            target_score INTEGER DEFAULT 0,
            players JSONB,
            duration_ms BIGINT DEFAULT 0,
            walkout_role TEXT DEFAULT '',
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        ALTER TABLE game_records ADD COLUMN IF NOT EXISTS walkout_role TEXT DEFAULT '';
        CREATE INDEX IF NOT EXISTS idx_game_records_room_id ON game_records(room_id);
        CREATE INDEX IF NOT EXISTS idx_game_records_created_at ON game_records(created_at);
    `)
	return err
}

// SaveRoom 保存房间检查点 (UPSERT)
func (p *PostgreSQL) SaveRoom(ctx context.Context, st *models.RoomState) error {
	data, err := EncodeRoom(st)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO rooms (room_id, phase, state)
        VALUES ($1, $2, $3)
        ON CONFLICT (room_id)
        DO UPDATE SET phase = $2, state = $3, updated_at = CURRENT_TIMESTAMP
    `
	_, err = p.db.ExecContext(ctx, query, st.ID, string(st.Phase), data)
	return err
}

func (p *PostgreSQL) LoadRooms(ctx context.Context) ([]*models.RoomState, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT state FROM rooms ORDER BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.RoomState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		st, err := DecodeRoom(data)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, st)
	}
	return rooms, rows.Err()
}

func (p *PostgreSQL) DeleteRoom(ctx context.Context, roomID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, r models.GameRecord) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO game_records
            (record_id, room_id, round, maze_size, seed, reason, score, target_score, players, duration_ms, walkout_role, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = p.db.ExecContext(ctx, query,
		r.ID, r.RoomID, r.Round, r.MazeSize, r.Seed, r.Reason,
		r.Score, r.TargetScore, players, r.DurationMs, string(r.WalkoutRole), time.UnixMilli(r.CreatedAt))
	return err
}

func (p *PostgreSQL) ListGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	query := `
        SELECT record_id, room_id, round, maze_size, seed, reason, score, target_score, players, duration_ms, walkout_role, created_at
        FROM game_records
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `
	rows, err := p.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		var (
			r         models.GameRecord
			players   []byte
			walkout   string
			createdAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.RoomID, &r.Round, &r.MazeSize, &r.Seed, &r.Reason,
			&r.Score, &r.TargetScore, &players, &r.DurationMs, &walkout, &createdAt); err != nil {
			return nil, err
		}
		r.WalkoutRole = models.Role(walkout)
		if len(players) > 0 {
			if err := json.Unmarshal(players, &r.Players); err != nil {
				return nil, err
			}
		}
		r.CreatedAt = createdAt.UnixMilli()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

var _ Store = (*PostgreSQL)(nil)
