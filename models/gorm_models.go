// models/gorm_models.go
package models

import (
	"time"
)

// GormRoom 房间检查点
type GormRoom struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"uniqueIndex;not null"`
	Phase     string `gorm:"not null"`
	State     []byte `gorm:"type:bytea;not null"` // msgpack RoomState
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GormRoom) TableName() string { return "rooms" }

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	ID          uint          `gorm:"primaryKey"`
	RecordID    string        `gorm:"uniqueIndex;not null"`
	RoomID      string        `gorm:"index;not null"`
	Round       int           `gorm:"default:0"`
	MazeSize    int           `gorm:"not null"`
	Seed        int64         `gorm:"default:0"`
	Reason      string        `gorm:"not null"`
	Score       int           `gorm:"default:0"`
	TargetScore int           `gorm:"default:0"`
	Players     []SessionInfo `gorm:"type:jsonb;serializer:json"`
	DurationMs  int64         `gorm:"default:0"` // 对局时长(毫秒)
	WalkoutRole string        `gorm:"default:''"`
	CreatedAt   time.Time     `gorm:"index"`
}

func (GormGameRecord) TableName() string { return "game_records" }

// ToRecord converts the row back to the domain record.
func (g GormGameRecord) ToRecord() GameRecord {
	return GameRecord{
		ID:          g.RecordID,
		RoomID:      g.RoomID,
		Round:       g.Round,
		MazeSize:    g.MazeSize,
		Seed:        g.Seed,
		Reason:      g.Reason,
		Score:       g.Score,
		TargetScore: g.TargetScore,
		Players:     g.Players,
		DurationMs:  g.DurationMs,
		WalkoutRole: Role(g.WalkoutRole),
		CreatedAt:   g.CreatedAt.UnixMilli(),
	}
}

// FromRecord builds a row from a domain record.
func FromRecord(r GameRecord) GormGameRecord {
	return GormGameRecord{
		RecordID:    r.ID,
		RoomID:      r.RoomID,
		Round:       r.Round,
		MazeSize:    r.MazeSize,
		Seed:        r.Seed,
		Reason:      r.Reason,
		Score:       r.Score,
		TargetScore: r.TargetScore,
		Players:     r.Players,
		DurationMs:  r.DurationMs,
		WalkoutRole: string(r.WalkoutRole),
		CreatedAt:   time.UnixMilli(r.CreatedAt),
	}
}
